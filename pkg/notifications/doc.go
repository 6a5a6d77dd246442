// Package notifications delivers messages to users.
//
// Services hand notifications to a Sink. RedisQueue is the production sink:
// it pushes JSON messages onto a Redis list that the Worker drains, storing
// an in-app notification and sending email according to a DeliveryPolicy.
// Delivery is at least once and failures are not retried.
//
// Inbox exposes a user's own notifications; Announcements manages the
// site-wide notices site admins publish.
package notifications
