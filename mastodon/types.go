package mastodon

import "time"

type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
	VisibilityDirect   Visibility = "direct"
)

func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityUnlisted, VisibilityPrivate, VisibilityDirect:
		return true
	}
	return false
}

type Account struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Acct        string `json:"acct"`
	DisplayName string `json:"display_name"`
	URL         string `json:"url"`
	Bot         bool   `json:"bot"`
}

type MediaAttachment struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	URL         string  `json:"url"`
	Description *string `json:"description"`
}

// HasDescription reports whether the attachment carries non-empty alt text.
func (m *MediaAttachment) HasDescription() bool {
	if m.Description == nil {
		return false
	}
	for _, r := range *m.Description {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return true
		}
	}
	return false
}

type Status struct {
	ID                 string            `json:"id"`
	URI                string            `json:"uri"`
	URL                string            `json:"url"`
	CreatedAt          time.Time         `json:"created_at"`
	Content            string            `json:"content"`
	Visibility         Visibility        `json:"visibility"`
	InReplyToID        *string           `json:"in_reply_to_id"`
	InReplyToAccountID *string           `json:"in_reply_to_account_id"`
	Account            Account           `json:"account"`
	MediaAttachments   []MediaAttachment `json:"media_attachments"`
}

// IsRoot reports whether the status starts a thread (is not a reply).
func (s *Status) IsRoot() bool {
	return s.InReplyToID == nil || *s.InReplyToID == ""
}

type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Account   Account   `json:"account"`
	Status    *Status   `json:"status,omitempty"`
}

type Relationship struct {
	ID         string `json:"id"`
	Following  bool   `json:"following"`
	FollowedBy bool   `json:"followed_by"`
	Requested  bool   `json:"requested"`
}

// StatusInput is the request body for posting a new status.
type StatusInput struct {
	Status      string     `json:"status"`
	Visibility  Visibility `json:"visibility,omitempty"`
	InReplyToID string     `json:"in_reply_to_id,omitempty"`
	// sent as the Idempotency-Key header, not in the body
	IdempotencyKey string `json:"-"`
}
