package domain

// User mirrors the target service's notion of a customer account. Created
// once per user-pool member and never deleted; referenced by id thereafter
// (spec.md §3).
type User struct {
	ID            string
	Name          string
	AccountAmount int64
}
