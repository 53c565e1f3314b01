package model

import "time"

// PendingMigration bridges a guest identity to the permanent account it will
// become once its owner authenticates with the declared email.
type PendingMigration struct {
	GuestUserID string     `json:"guest_user_id"`
	Migrated    bool       `json:"migrated"`
	MigratedAt  *time.Time `json:"migrated_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// MigrationResult reports one RunMigration outcome. IdentityProviderDeleted
// is false when the post-commit directory cleanup failed; the data migration
// itself is already committed at that point.
type MigrationResult struct {
	MigratedCount           int     `json:"migrated_count"`
	NewMessageIDs           []int64 `json:"new_message_ids,omitempty"`
	GuestUserID             string  `json:"guest_user_id,omitempty"`
	IdentityProviderDeleted bool    `json:"identity_provider_deleted"`
}

type Message struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Profile struct {
	UserID    string    `json:"user_id"`
	Email     *string   `json:"email,omitempty"`
	FirstName *string   `json:"first_name,omitempty"`
	LastName  *string   `json:"last_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
