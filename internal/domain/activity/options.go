package activity

// ListOptions provides filtering options for listing activity.
type ListOptions struct {
	ListingID *string
	Type      *Type
	Limit     int
	Offset    int
}
