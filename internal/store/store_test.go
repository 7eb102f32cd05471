package store

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pizzaportal/assignhub/internal/model"
)

func newAssignment(userID, roleID int64, storeID string) *model.Assignment {
	id := userID*1000 + roleID
	return &model.Assignment{
		ID:       &id,
		UserID:   userID,
		RoleID:   roleID,
		StoreID:  storeID,
		Metadata: map[string]string{"notes": "test"},
		IsActive: true,
	}
}

// --- 導出ビューのテスト ---

func TestByStore_ReturnsOrderedAssignments(t *testing.T) {
	s := New(nil)
	s.SetStoreAssignments("S1", []*model.Assignment{
		newAssignment(1, 1, "S1"),
		newAssignment(2, 1, "S1"),
		newAssignment(3, 2, "S1"),
	})

	got := s.ByStore("S1")
	if len(got) != 3 {
		t.Fatalf("ByStore count = %d, want 3", len(got))
	}
	if got[0].UserID != 1 || got[1].UserID != 2 || got[2].UserID != 3 {
		t.Error("ByStore should preserve fetch order")
	}
}

func TestByStore_UnknownStoreReturnsEmptySlice(t *testing.T) {
	s := New(nil)

	got := s.ByStore("unknown")
	if got == nil {
		t.Fatal("expected empty slice, got nil")
	}
	if len(got) != 0 {
		t.Errorf("count = %d, want 0", len(got))
	}
}

func TestViews_SameTripleIsFieldEqualInBothViews(t *testing.T) {
	s := New(nil)
	a := newAssignment(7, 2, "S1")
	s.SetStoreAssignments("S1", []*model.Assignment{a})
	s.SetUserAssignments(7, []*model.Assignment{a})

	byStore := s.ByStore("S1")
	byUser := s.ByUser(7)
	if len(byStore) != 1 || len(byUser) != 1 {
		t.Fatalf("view counts = %d/%d, want 1/1", len(byStore), len(byUser))
	}

	// 正規ストア方式のため、両ビューは同一エントリを指す
	if byStore[0] != byUser[0] {
		t.Error("both views should resolve to the same canonical entry")
	}
	if byStore[0].UserID != 7 || byStore[0].RoleID != 2 || byStore[0].StoreID != "S1" {
		t.Errorf("fields = %+v, want triple (7, 2, S1)", byStore[0])
	}
}

func TestUpsert_UpdateVisibleThroughBothViews(t *testing.T) {
	s := New(nil)
	a := newAssignment(7, 2, "S1")
	s.SetStoreAssignments("S1", []*model.Assignment{a})
	s.SetUserAssignments(7, []*model.Assignment{a})

	toggled := newAssignment(7, 2, "S1")
	toggled.IsActive = false
	s.Upsert(toggled)

	if s.ByStore("S1")[0].IsActive {
		t.Error("store view should see the toggle")
	}
	if s.ByUser(7)[0].IsActive {
		t.Error("user view should see the toggle")
	}
}

func TestDelete_RemovesFromBothIndices(t *testing.T) {
	s := New(nil)
	a := newAssignment(7, 2, "S1")
	s.SetStoreAssignments("S1", []*model.Assignment{a})
	s.SetUserAssignments(7, []*model.Assignment{a})

	s.Delete(a.Key())

	if len(s.ByStore("S1")) != 0 {
		t.Error("store view should be empty after delete")
	}
	if len(s.ByUser(7)) != 0 {
		t.Error("user view should be empty after delete")
	}
	if s.Get(a.Key()) != nil {
		t.Error("canonical entry should be removed")
	}
}

// --- 鮮度のテスト ---

func TestIsFresh_WithinWindow(t *testing.T) {
	s := New(nil)
	now := time.Now()
	s.now = func() time.Time { return now }

	s.SetStoreAssignments("S1", nil)

	s.now = func() time.Time { return now.Add(4 * time.Minute) }
	if !s.IsFresh(StoreKey("S1"), DefaultMaxAge) {
		t.Error("key updated 4 minutes ago should be fresh within 5 minute window")
	}

	s.now = func() time.Time { return now.Add(6 * time.Minute) }
	if s.IsFresh(StoreKey("S1"), DefaultMaxAge) {
		t.Error("key updated 6 minutes ago should be stale")
	}
}

func TestIsFresh_UnknownKeyIsStale(t *testing.T) {
	s := New(nil)
	if s.IsFresh(UserKey(99), DefaultMaxAge) {
		t.Error("never-fetched key should not be fresh")
	}
}

func TestInvalidate_ForcesRefetch(t *testing.T) {
	s := New(nil)
	s.SetUserAssignments(5, nil)
	if !s.IsFresh(UserKey(5), DefaultMaxAge) {
		t.Fatal("key should be fresh right after update")
	}

	s.Invalidate(UserKey(5))
	if s.IsFresh(UserKey(5), DefaultMaxAge) {
		t.Error("invalidated key should not be fresh")
	}
}

func TestStaleKeys_ReturnsOnlyExpired(t *testing.T) {
	s := New(nil)
	now := time.Now()
	s.now = func() time.Time { return now }
	s.SetStoreAssignments("old", nil)

	s.now = func() time.Time { return now.Add(10 * time.Minute) }
	s.SetStoreAssignments("new", nil)

	stale := s.StaleKeys(DefaultMaxAge)
	if len(stale) != 1 || stale[0] != StoreKey("old") {
		t.Errorf("StaleKeys = %v, want [store:old]", stale)
	}
}

// --- 操作状態のテスト ---

func TestOperationStates_AreIndependent(t *testing.T) {
	s := New(nil)

	bulkErr := errors.New("bulk failed")
	s.BeginOperation(model.OpBulkAssign)
	s.FinishOperation(model.OpBulkAssign, bulkErr)
	s.BeginOperation(model.OpFetchStoreAssignments)

	bulk := s.OperationState(model.OpBulkAssign)
	if bulk.Loading || bulk.Err == nil {
		t.Errorf("bulkAssign state = %+v, want finished with error", bulk)
	}

	fetch := s.OperationState(model.OpFetchStoreAssignments)
	if !fetch.Loading || fetch.Err != nil {
		t.Errorf("fetch state = %+v, want loading without error (bulk failure must not block it)", fetch)
	}
}

func TestBeginOperation_ClearsPreviousError(t *testing.T) {
	s := New(nil)
	s.FinishOperation(model.OpAssign, errors.New("previous"))
	s.BeginOperation(model.OpAssign)

	if st := s.OperationState(model.OpAssign); st.Err != nil {
		t.Errorf("Err = %v, want cleared on begin", st.Err)
	}
}

// --- サニタイズのテスト ---

type stripSanitizer struct{}

func (stripSanitizer) Sanitize(raw string) string {
	return strings.ReplaceAll(strings.ReplaceAll(raw, "<script>", ""), "</script>", "")
}

func TestSetStoreAssignments_SanitizesMetadata(t *testing.T) {
	s := New(stripSanitizer{})
	a := newAssignment(1, 1, "S1")
	a.Metadata["notes"] = "<script>alert(1)</script>hello"

	s.SetStoreAssignments("S1", []*model.Assignment{a})

	got := s.ByStore("S1")[0].Metadata["notes"]
	if strings.Contains(got, "<script>") {
		t.Errorf("notes = %q, want script tags stripped", got)
	}
}

func TestSetStoreAssignments_CopiesInput(t *testing.T) {
	s := New(nil)
	a := newAssignment(1, 1, "S1")
	s.SetStoreAssignments("S1", []*model.Assignment{a})

	// 呼び出し元の後続変更がキャッシュに漏れないこと
	a.Metadata["notes"] = "mutated"
	a.IsActive = false

	cached := s.ByStore("S1")[0]
	if cached.Metadata["notes"] == "mutated" || !cached.IsActive {
		t.Error("cache entry should be isolated from caller mutation")
	}
}
