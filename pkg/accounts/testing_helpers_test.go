package accounts

func int64Ptr(v int64) *int64 { return &v }

func rolePtr(r MembershipRole) *MembershipRole { return &r }
