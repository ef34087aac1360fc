package dynamo

// DynamoDB attribute names used in update and condition expressions across all repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldUserID    = "user_id"
	fieldSessionID = "session_id"
	fieldEmail     = "email"
	fieldEnable    = "enable"
	fieldUpdatedAt = "updated_at"
	fieldRevision  = "revision"
	fieldEvictAt   = "evict_at"
	fieldOwner     = "owner_id"
)

// emailGuardPrefix marks the uniqueness item written alongside every user.
const emailGuardPrefix = "email#"
