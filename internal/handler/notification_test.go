package handler

import (
	"net/http"
	"testing"

	"github.com/dukerupert/serene/internal/model"
)

func TestNotificationsSeen(t *testing.T) {
	env := setupHandlerTest(t)
	rec := env.do(t, "u1", "GET", "/api/notifications", nil)
	expectStatus(t, rec, http.StatusOK)
	if rec.Body.String() != "[]\n" {
		t.Errorf("empty list = %q, want []", rec.Body.String())
	}

	env.do(t, "u1", "POST", "/api/assessments", map[string]any{"answers": []int{3, 3, 3, 3, 3, 0, 0, 0, 0}})
	env.flush(t)

	notifs := decode[[]model.Notification](t, env.do(t, "u1", "GET", "/api/notifications", nil))
	if len(notifs) != 1 {
		t.Fatalf("notifications = %+v", notifs)
	}
	id := notifs[0].ID

	expectStatus(t, env.do(t, "u2", "POST", "/api/notifications/"+id+"/seen", nil), http.StatusNotFound)
	expectStatus(t, env.do(t, "u1", "POST", "/api/notifications/"+id+"/seen", nil), http.StatusNoContent)

	if notifs := decode[[]model.Notification](t, env.do(t, "u1", "GET", "/api/notifications", nil)); len(notifs) != 0 {
		t.Errorf("active after seen = %+v", notifs)
	}
	all := decode[[]model.Notification](t, env.do(t, "u1", "GET", "/api/notifications?all=true", nil))
	if len(all) != 1 || all[0].SeenAt == nil {
		t.Errorf("all = %+v, want one seen notification", all)
	}
}

func TestMeIncludesActiveNotifications(t *testing.T) {
	env := setupHandlerTest(t)
	env.do(t, "u1", "POST", "/api/assessments", map[string]any{"answers": []int{3, 3, 3, 3, 3, 0, 0, 0, 0}})
	env.flush(t)

	rec := env.do(t, "u1", "GET", "/api/me", nil)
	expectStatus(t, rec, http.StatusOK)
	u := decode[model.User](t, rec)
	if u.ID != "u1" || u.Email != "u1@example.com" {
		t.Errorf("user = %+v", u)
	}
	if u.LastAssessment == nil || u.LastAssessment.Score != 15 {
		t.Errorf("last assessment = %+v, want score 15", u.LastAssessment)
	}
	if len(u.Notifications) != 1 {
		t.Errorf("notifications = %+v, want the alert", u.Notifications)
	}
}

func TestVerifyEnsuresUser(t *testing.T) {
	env := setupHandlerTest(t)
	rec := env.do(t, "fresh", "POST", "/api/auth/verify", nil)
	expectStatus(t, rec, http.StatusOK)

	body := decode[struct {
		Message string     `json:"message"`
		User    model.User `json:"user"`
	}](t, rec)
	if body.Message == "" || body.User.ID != "fresh" {
		t.Errorf("body = %+v", body)
	}
}
