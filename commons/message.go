package commons

import (
	"github.com/burntcarrot/sharepad/share"
	"github.com/google/uuid"
)

// Message represents the message sent over the wire.
type Message struct {
	// Type represents the message type.
	Type MessageType `json:"type"`

	// ID correlates a response with its request. Requests get a fresh UUID, responses echo it.
	ID uuid.UUID `json:"ID"`

	// Share is the name of the share the message is about.
	Share string `json:"share"`

	// RenamedTo is set on a changed notice when the update renamed the share.
	RenamedTo string `json:"renamed_to,omitempty"`

	// Members holds the member list of a fetch response.
	Members []share.Member `json:"members,omitempty"`

	// Request holds the update request of a submit.
	Request *share.UpdateRequest `json:"request,omitempty"`

	// Snapshot holds the state of the share after a successful submit.
	Snapshot *share.ContainerSnapshot `json:"snapshot,omitempty"`

	// Code and Text describe the failure carried by an error message.
	Code ErrorCode `json:"code,omitempty"`
	Text string    `json:"text,omitempty"`
}

// MessageType represents the type of the message.
type MessageType string

// Currently, sharepad supports 6 message types:
// - fetchReq/fetchResp (for fetching the members of a share)
// - submitReq/submitResp (for applying an update request)
// - error (for failed requests)
// - changed (broadcast to other clients after a share was updated)

const (
	FetchReqMessage   MessageType = "fetchReq"
	FetchRespMessage  MessageType = "fetchResp"
	SubmitReqMessage  MessageType = "submitReq"
	SubmitRespMessage MessageType = "submitResp"
	ErrorMessage      MessageType = "error"
	ChangedMessage    MessageType = "changed"
)

// ErrorCode classifies the failure of a request.
type ErrorCode string

const (
	CodeShareNotFound  ErrorCode = "SHARE_NOT_FOUND"
	CodeAlreadyExists  ErrorCode = "ALREADY_EXISTS"
	CodeMemberNotFound ErrorCode = "MEMBER_NOT_FOUND"
	CodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	CodeInternal       ErrorCode = "INTERNAL"
)
