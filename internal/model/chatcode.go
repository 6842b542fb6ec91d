package model

import (
	"time"
)

// ChatCode is a short numeric token a user hands to a peer so the peer can
// open a conversation with them. A user may hold at most MaxChatCodesPerUser
// unredeemed codes at a time.
type ChatCode struct {
	Code      int       `json:"code"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// MaxChatCodesPerUser caps the number of live codes per issuer.
const MaxChatCodesPerUser = 5

// CreateChatCodeResponse is returned when a new code is issued.
type CreateChatCodeResponse struct {
	Code int `json:"code"`
}

// RedeemChatCodeRequest is the request to redeem a peer's code.
type RedeemChatCodeRequest struct {
	Code int `json:"code"`
}

// RedeemChatCodeResponse is returned when a redemption creates a conversation.
type RedeemChatCodeResponse struct {
	Conversation Conversation `json:"conversation"`
}

// ListChatCodesResponse lists the caller's unredeemed codes.
type ListChatCodesResponse struct {
	Codes []ChatCode `json:"codes"`
}
