// Package permissions decides object-level access for conversations, messages
// and user-owned records.
package permissions

import (
	"context"
	"net/http"
)

// Request is the authenticated caller and the HTTP method being attempted.
type Request struct {
	UserID string
	Method string
}

func (r Request) authenticated() bool { return r.UserID != "" }

// Resource is anything guarded by a permission.
// ConversationRef is empty for records outside a conversation; OwnerID is empty
// for records nobody owns.
type Resource interface {
	ConversationRef() string
	OwnerID() string
}

// Membership answers participant lookups.
type Membership interface {
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
}

// Permission is a two-phase check: request level, then object level.
type Permission interface {
	HasPermission(req Request) bool
	HasObjectPermission(ctx context.Context, req Request, obj Resource) (bool, error)
}

// IsSafeMethod reports read-only HTTP methods.
func IsSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

type authenticated struct{}

func (authenticated) HasPermission(req Request) bool { return req.authenticated() }

// IsParticipantOfConversation allows only participants, for reads and writes alike.
type IsParticipantOfConversation struct {
	authenticated
	Members Membership
}

func (p IsParticipantOfConversation) HasObjectPermission(ctx context.Context, req Request, obj Resource) (bool, error) {
	if !req.authenticated() || obj == nil || obj.ConversationRef() == "" {
		return false, nil
	}
	return p.Members.IsParticipant(ctx, obj.ConversationRef(), req.UserID)
}

// IsOwnerOrParticipant lets the owner through unconditionally, then falls back to membership.
type IsOwnerOrParticipant struct {
	authenticated
	Members Membership
}

func (p IsOwnerOrParticipant) HasObjectPermission(ctx context.Context, req Request, obj Resource) (bool, error) {
	if !req.authenticated() || obj == nil {
		return false, nil
	}
	if owner := obj.OwnerID(); owner != "" && owner == req.UserID {
		return true, nil
	}
	if obj.ConversationRef() == "" {
		return false, nil
	}
	return p.Members.IsParticipant(ctx, obj.ConversationRef(), req.UserID)
}

// IsAuthenticatedAndOwner allows only the record's owner.
type IsAuthenticatedAndOwner struct {
	authenticated
}

func (IsAuthenticatedAndOwner) HasObjectPermission(_ context.Context, req Request, obj Resource) (bool, error) {
	if !req.authenticated() || obj == nil {
		return false, nil
	}
	owner := obj.OwnerID()
	return owner != "" && owner == req.UserID, nil
}

// IsParticipantOrReadOnly grants participants full access and everyone else safe methods.
type IsParticipantOrReadOnly struct {
	authenticated
	Members Membership
}

func (p IsParticipantOrReadOnly) HasObjectPermission(ctx context.Context, req Request, obj Resource) (bool, error) {
	if !req.authenticated() || obj == nil || obj.ConversationRef() == "" {
		return false, nil
	}
	ok, err := p.Members.IsParticipant(ctx, obj.ConversationRef(), req.UserID)
	if err != nil || ok {
		return ok, err
	}
	return IsSafeMethod(req.Method), nil
}

// Check runs every permission in order and stops at the first denial.
func Check(ctx context.Context, req Request, obj Resource, perms ...Permission) (bool, error) {
	for _, p := range perms {
		if !p.HasPermission(req) {
			return false, nil
		}
		if obj == nil {
			continue
		}
		ok, err := p.HasObjectPermission(ctx, req, obj)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}
