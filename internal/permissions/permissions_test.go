package permissions

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"messagehub/internal/models"
)

type staticMembers map[string][]string

func (s staticMembers) IsParticipant(_ context.Context, conversationID, userID string) (bool, error) {
	for _, id := range s[conversationID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

type failingMembers struct{}

func (failingMembers) IsParticipant(context.Context, string, string) (bool, error) {
	return false, errors.New("db down")
}

var members = staticMembers{"c1": {"alice", "bob"}}

func TestIsParticipantOfConversation(t *testing.T) {
	perm := IsParticipantOfConversation{Members: members}
	conv := &models.Conversation{ID: "c1"}
	msg := &models.Message{ID: "m1", ConversationID: "c1", SenderID: "alice"}

	cases := []struct {
		name string
		req  Request
		obj  Resource
		want bool
	}{
		{"participant reads conversation", Request{UserID: "bob", Method: http.MethodGet}, conv, true},
		{"participant deletes message", Request{UserID: "bob", Method: http.MethodDelete}, msg, true},
		{"outsider reads", Request{UserID: "eve", Method: http.MethodGet}, conv, false},
		{"outsider writes", Request{UserID: "eve", Method: http.MethodPost}, msg, false},
		{"anonymous", Request{Method: http.MethodGet}, conv, false},
		{"non conversation object", Request{UserID: "alice", Method: http.MethodGet}, &models.User{ID: "alice"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := perm.HasObjectPermission(context.Background(), tc.req, tc.obj)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
	if perm.HasPermission(Request{}) {
		t.Fatalf("anonymous request must be denied")
	}
}

func TestIsOwnerOrParticipant(t *testing.T) {
	perm := IsOwnerOrParticipant{Members: members}
	// sender is no longer a participant but still owns the message
	msg := &models.Message{ID: "m1", ConversationID: "c1", SenderID: "carol"}

	for _, tc := range []struct {
		user string
		want bool
	}{
		{"carol", true},
		{"alice", true},
		{"eve", false},
	} {
		got, err := perm.HasObjectPermission(context.Background(), Request{UserID: tc.user, Method: http.MethodGet}, msg)
		if err != nil {
			t.Fatalf("%s: %v", tc.user, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.user, got, tc.want)
		}
	}
}

func TestIsAuthenticatedAndOwner(t *testing.T) {
	perm := IsAuthenticatedAndOwner{}
	ctx := context.Background()
	note := &models.Notification{ID: 1, UserID: "alice"}
	if ok, _ := perm.HasObjectPermission(ctx, Request{UserID: "alice"}, note); !ok {
		t.Fatalf("owner should pass")
	}
	if ok, _ := perm.HasObjectPermission(ctx, Request{UserID: "bob"}, note); ok {
		t.Fatalf("non-owner should fail")
	}
	if ok, _ := perm.HasObjectPermission(ctx, Request{UserID: "alice"}, &models.Conversation{ID: "c1"}); ok {
		t.Fatalf("ownerless object should fail")
	}
}

func TestIsParticipantOrReadOnly(t *testing.T) {
	perm := IsParticipantOrReadOnly{Members: members}
	conv := &models.Conversation{ID: "c1"}
	ctx := context.Background()
	for _, tc := range []struct {
		user, method string
		want         bool
	}{
		{"alice", http.MethodPatch, true},
		{"eve", http.MethodGet, true},
		{"eve", http.MethodHead, true},
		{"eve", http.MethodPut, false},
	} {
		got, err := perm.HasObjectPermission(ctx, Request{UserID: tc.user, Method: tc.method}, conv)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != tc.want {
			t.Fatalf("%s %s: got %v, want %v", tc.user, tc.method, got, tc.want)
		}
	}
}

func TestCheckStopsOnErrorAndDenial(t *testing.T) {
	ctx := context.Background()
	conv := &models.Conversation{ID: "c1"}
	ok, err := Check(ctx, Request{UserID: "alice", Method: http.MethodGet}, conv,
		IsParticipantOfConversation{Members: failingMembers{}})
	if err == nil || ok {
		t.Fatalf("expected membership error to propagate, got ok=%v err=%v", ok, err)
	}
	ok, err = Check(ctx, Request{UserID: "alice", Method: http.MethodGet}, nil, IsAuthenticatedAndOwner{})
	if err != nil || !ok {
		t.Fatalf("request-level check should pass without object: ok=%v err=%v", ok, err)
	}
	ok, _ = Check(ctx, Request{}, nil, IsAuthenticatedAndOwner{})
	if ok {
		t.Fatalf("anonymous must fail request-level check")
	}
}
