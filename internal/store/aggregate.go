package store

import "database/sql"

// UserAggregate joins the stores that back a live user session: the user
// row, its notifications and its assessment history.
type UserAggregate struct {
	*UserStore
	*NotificationStore
	*AssessmentStore
}

func NewUserAggregate(db *sql.DB) *UserAggregate {
	return &UserAggregate{
		UserStore:         NewUserStore(db),
		NotificationStore: NewNotificationStore(db),
		AssessmentStore:   NewAssessmentStore(db),
	}
}
