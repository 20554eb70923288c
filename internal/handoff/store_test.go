package handoff

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/pitabwire/crmflow/model"
)

func testUser(id string) model.User {
	return model.User{
		ID:   id,
		Name: "User " + id,
		Role: model.RoleSalesRep,
		Permissions: model.Permissions{
			CanView: model.StageSet{model.StageInitialContact: true},
		},
		Active:            true,
		AssignedWorkflows: []string{},
		Version:           1,
	}
}

// --- MemoryUserStore ---

func TestMemoryUserStore_CreateAndGet(t *testing.T) {
	store := NewMemoryUserStore()
	ctx := context.Background()

	if err := store.Create(ctx, testUser("u-1")); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	got, err := store.Get(ctx, "u-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Name != "User u-1" {
		t.Errorf("Name = %q, want %q", got.Name, "User u-1")
	}

	if err := store.Create(ctx, testUser("u-1")); !model.IsCode(err, model.ErrConflict) {
		t.Errorf("duplicate Create error = %v, want CONFLICT", err)
	}
	if _, err := store.Get(ctx, "missing"); !model.IsCode(err, model.ErrNotFound) {
		t.Errorf("Get missing error = %v, want NOT_FOUND", err)
	}
}

func TestMemoryUserStore_isolatedCopies(t *testing.T) {
	store := NewMemoryUserStore()
	ctx := context.Background()

	u := testUser("u-1")
	store.Create(ctx, u)
	u.AssignedWorkflows = append(u.AssignedWorkflows, "wf-leak")
	u.Permissions.CanView[model.StageLeadSubmission] = true

	got, _ := store.Get(ctx, "u-1")
	if len(got.AssignedWorkflows) != 0 {
		t.Errorf("AssignedWorkflows = %v, want empty", got.AssignedWorkflows)
	}
	if got.Permissions.CanView.Has(model.StageLeadSubmission) {
		t.Error("permission edit leaked into store")
	}
}

func TestMemoryUserStore_optimisticLock(t *testing.T) {
	store := NewMemoryUserStore()
	ctx := context.Background()
	store.Create(ctx, testUser("u-1"))

	first, _ := store.Get(ctx, "u-1")
	second, _ := store.Get(ctx, "u-1")

	first.AddWorkflow("wf-1")
	if err := store.Update(ctx, first); err != nil {
		t.Fatalf("first Update error: %v", err)
	}
	second.AddWorkflow("wf-2")
	if err := store.Update(ctx, second); !model.IsCode(err, model.ErrConflict) {
		t.Fatalf("stale Update error = %v, want CONFLICT", err)
	}

	got, _ := store.Get(ctx, "u-1")
	if got.Version != 2 {
		t.Errorf("Version = %d, want 2", got.Version)
	}
	if !got.HasWorkflow("wf-1") || got.HasWorkflow("wf-2") {
		t.Errorf("AssignedWorkflows = %v, want [wf-1]", got.AssignedWorkflows)
	}

	if err := store.Update(ctx, testUser("ghost")); !model.IsCode(err, model.ErrNotFound) {
		t.Errorf("Update missing error = %v, want NOT_FOUND", err)
	}
}

func TestMemoryUserStore_ListCreationOrder(t *testing.T) {
	store := NewMemoryUserStore()
	ctx := context.Background()
	ids := []string{"zed", "amy", "mid"}
	for _, id := range ids {
		store.Create(ctx, testUser(id))
	}

	users, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(users) != len(ids) {
		t.Fatalf("len(List) = %d, want %d", len(users), len(ids))
	}
	for i, u := range users {
		if u.ID != ids[i] {
			t.Errorf("List[%d] = %q, want %q", i, u.ID, ids[i])
		}
	}
}

// --- NotificationStore implementations ---

func newRedisNotificationStore(t *testing.T) (*RedisNotificationStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisNotificationStore(client, "test"), mr
}

func notificationStores(t *testing.T) map[string]NotificationStore {
	redisStore, _ := newRedisNotificationStore(t)
	return map[string]NotificationStore{
		"memory": NewMemoryNotificationStore(),
		"redis":  redisStore,
	}
}

func TestNotificationStore_ListOrderAndUnread(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	for name, store := range notificationStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := range 4 {
				n := model.Notification{
					ID:        fmt.Sprintf("n-%d", i),
					UserID:    "u-1",
					Type:      model.NotificationWorkflowAssigned,
					Data:      map[string]any{"workflow_id": fmt.Sprintf("wf-%d", i)},
					CreatedAt: base.Add(time.Duration(i) * time.Minute),
				}
				if err := store.Add(ctx, n); err != nil {
					t.Fatalf("Add error: %v", err)
				}
			}
			store.Add(ctx, model.Notification{ID: "other", UserID: "u-2", Type: "reminder"})

			if err := store.MarkRead(ctx, "u-1", "n-1"); err != nil {
				t.Fatalf("MarkRead error: %v", err)
			}

			all, err := store.ListForUser(ctx, "u-1", false)
			if err != nil {
				t.Fatalf("ListForUser error: %v", err)
			}
			if len(all) != 4 {
				t.Fatalf("len(all) = %d, want 4", len(all))
			}
			for i, n := range all {
				if want := fmt.Sprintf("n-%d", i); n.ID != want {
					t.Errorf("all[%d].ID = %q, want %q", i, n.ID, want)
				}
			}
			if !all[1].Read {
				t.Error("n-1 not marked read")
			}
			if got := all[2].Data["workflow_id"]; got != "wf-2" {
				t.Errorf("Data[workflow_id] = %v, want wf-2", got)
			}

			unread, _ := store.ListForUser(ctx, "u-1", true)
			if len(unread) != 3 {
				t.Errorf("len(unread) = %d, want 3", len(unread))
			}

			empty, err := store.ListForUser(ctx, "nobody", false)
			if err != nil {
				t.Fatalf("ListForUser(nobody) error: %v", err)
			}
			if empty == nil || len(empty) != 0 {
				t.Errorf("ListForUser(nobody) = %v, want empty slice", empty)
			}
		})
	}
}

func TestNotificationStore_MarkReadNotFound(t *testing.T) {
	for name, store := range notificationStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store.Add(ctx, model.Notification{ID: "n-1", UserID: "u-1", Type: "reminder"})

			if err := store.MarkRead(ctx, "u-1", "n-404"); !model.IsCode(err, model.ErrNotFound) {
				t.Errorf("MarkRead unknown id error = %v, want NOT_FOUND", err)
			}
			if err := store.MarkRead(ctx, "u-2", "n-1"); !model.IsCode(err, model.ErrNotFound) {
				t.Errorf("MarkRead other user error = %v, want NOT_FOUND", err)
			}
		})
	}
}

func TestRedisNotificationStore_keys(t *testing.T) {
	store, mr := newRedisNotificationStore(t)
	ctx := context.Background()

	store.Add(ctx, model.Notification{ID: "n-1", UserID: "u-1", Type: "reminder"})

	if !mr.Exists("test:notif:u-1") {
		t.Error("document hash missing")
	}
	if !mr.Exists("test:notif:u-1:idx") {
		t.Error("index zset missing")
	}
	seq, err := mr.Get("test:notif:seq")
	if err != nil {
		t.Fatalf("seq Get error: %v", err)
	}
	if seq != "1" {
		t.Errorf("seq = %q, want 1", seq)
	}
}

func TestRedisNotificationStore_MarkReadKeepsConcurrentWrite(t *testing.T) {
	store, mr := newRedisNotificationStore(t)
	ctx := context.Background()
	if err := store.Add(ctx, model.Notification{ID: "n-1", UserID: "u-1", Type: "reminder"}); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	fetches := 0
	store.fetched = func() {
		fetches++
		if fetches == 1 {
			updated, _ := json.Marshal(model.Notification{
				ID: "n-1", UserID: "u-1", Type: "reminder", Data: map[string]any{"workflow_id": "wf-7"},
			})
			mr.HSet("test:notif:u-1", "n-1", string(updated))
		}
	}

	if err := store.MarkRead(ctx, "u-1", "n-1"); err != nil {
		t.Fatalf("MarkRead error: %v", err)
	}
	if fetches != 2 {
		t.Errorf("fetches = %d, want 2 (one retry after the concurrent write)", fetches)
	}
	got, err := store.ListForUser(ctx, "u-1", false)
	if err != nil || len(got) != 1 {
		t.Fatalf("ListForUser = %v, %v", got, err)
	}
	if !got[0].Read {
		t.Error("notification not marked read")
	}
	if got[0].Data["workflow_id"] != "wf-7" {
		t.Errorf("Data = %v, concurrent write was lost", got[0].Data)
	}
}

func TestRedisNotificationStore_MarkReadGivesUpUnderContention(t *testing.T) {
	store, mr := newRedisNotificationStore(t)
	ctx := context.Background()
	if err := store.Add(ctx, model.Notification{ID: "n-1", UserID: "u-1", Type: "reminder"}); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	original := mr.HGet("test:notif:u-1", "n-1")

	fetches := 0
	store.fetched = func() {
		fetches++
		mr.HSet("test:notif:u-1", "n-1", original)
	}

	err := store.MarkRead(ctx, "u-1", "n-1")
	if !model.IsCode(err, model.ErrConflict) {
		t.Fatalf("MarkRead error = %v, want CONFLICT", err)
	}
	if fetches != markReadAttempts {
		t.Errorf("fetches = %d, want %d", fetches, markReadAttempts)
	}
	unread, _ := store.ListForUser(ctx, "u-1", true)
	if len(unread) != 1 {
		t.Errorf("unread = %v, want the notification still unread", unread)
	}
}

func TestRedisNotificationStore_HealthCheck(t *testing.T) {
	store, mr := newRedisNotificationStore(t)
	ctx := context.Background()

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck error: %v", err)
	}
	mr.Close()
	if err := store.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck after close = nil, want error")
	}
}

func TestRedisNotificationStore_defaultNamespace(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisNotificationStore(client, "")
	store.Add(context.Background(), model.Notification{ID: "n-1", UserID: "u-1"})

	if !mr.Exists("crmflow:notif:u-1") {
		t.Error("default namespace key missing")
	}
}

func TestManager_withRedisNotifications(t *testing.T) {
	store, _ := newRedisNotificationStore(t)
	f := newFixture(t, nil, WithNotificationStore(store))
	ctx := context.Background()

	mc := f.user(t, "mc-1", model.RoleMarketingCoordinator)
	wf := f.workflowAt(t, "cust_1", model.StageLeadSubmission, nil)
	f.assign(t, wf.ID, mc.ID)

	list, err := store.ListForUser(ctx, mc.ID, true)
	if err != nil {
		t.Fatalf("ListForUser error: %v", err)
	}
	if len(list) != 1 || list[0].Type != model.NotificationWorkflowAssigned {
		t.Fatalf("notifications = %+v, want one workflow_assigned", list)
	}
	if got := list[0].Data["workflow_id"]; got != wf.ID {
		t.Errorf("Data[workflow_id] = %v, want %s", got, wf.ID)
	}

	if err := f.manager.MarkNotificationRead(ctx, mc.ID, list[0].ID); err != nil {
		t.Fatalf("MarkNotificationRead error: %v", err)
	}
	dash, err := f.manager.GetUserDashboard(ctx, mc.ID)
	if err != nil {
		t.Fatalf("GetUserDashboard error: %v", err)
	}
	if len(dash.UnreadNotifications) != 0 {
		t.Errorf("unread = %d, want 0", len(dash.UnreadNotifications))
	}
}
