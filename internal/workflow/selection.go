// Package workflow はバルク割り当てワークフローのコントローラを提供する。
// 選択状態の管理、3ステップの進捗計算、デカルト積展開、
// 並行ディスパッチと結果集約を含む。
package workflow

import (
	"cmp"
	"slices"
)

// totalSteps はワークフローのステップ数（ユーザー選択・ロール選択・店舗選択）。
const totalSteps = 3

// selectionSet は選択状態の1集合を表す。
type selectionSet[T cmp.Ordered] struct {
	members map[T]struct{}
}

func newSelectionSet[T cmp.Ordered]() *selectionSet[T] {
	return &selectionSet[T]{members: make(map[T]struct{})}
}

// toggle はIDの選択状態を反転する。2回連続のtoggleで元の状態に戻る。
func (s *selectionSet[T]) toggle(id T) {
	if _, ok := s.members[id]; ok {
		delete(s.members, id)
	} else {
		s.members[id] = struct{}{}
	}
}

// selectAll は「すべて選択」のトグル動作を実装する。
// 現在表示中（フィルタ済み）のIDがすべて選択済みの場合は選択全体をクリアし、
// そうでない場合はフィルタ済みIDをすべて選択に追加する。
// 判定もクリアも呼び出し時点のフィルタ済みリストに対して行われる。
func (s *selectionSet[T]) selectAll(filtered []T) {
	if len(filtered) > 0 && s.containsAll(filtered) {
		s.clear()
		return
	}
	for _, id := range filtered {
		s.members[id] = struct{}{}
	}
}

func (s *selectionSet[T]) containsAll(ids []T) bool {
	for _, id := range ids {
		if _, ok := s.members[id]; !ok {
			return false
		}
	}
	return true
}

func (s *selectionSet[T]) clear() {
	s.members = make(map[T]struct{})
}

func (s *selectionSet[T]) size() int {
	return len(s.members)
}

// sorted はメンバーを昇順で返す。集合自体は順序を持たないため、
// 外部へ渡す際は常にソートして決定的な順序にする。
func (s *selectionSet[T]) sorted() []T {
	ids := make([]T, 0, len(s.members))
	for id := range s.members {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Selection はワークフローページの選択状態を表す。
// ユーザー・ロール・店舗の3集合は互いに独立している。
// ページのマウント時に空で生成され、送信成功後またはクリア操作で破棄される。
type Selection struct {
	users  *selectionSet[int64]
	roles  *selectionSet[int64]
	stores *selectionSet[string]
}

// NewSelection は空のSelectionを生成する。
func NewSelection() *Selection {
	return &Selection{
		users:  newSelectionSet[int64](),
		roles:  newSelectionSet[int64](),
		stores: newSelectionSet[string](),
	}
}

// ToggleUser はユーザーIDの選択状態を反転する。
func (sel *Selection) ToggleUser(id int64) { sel.users.toggle(id) }

// ToggleRole はロールIDの選択状態を反転する。
func (sel *Selection) ToggleRole(id int64) { sel.roles.toggle(id) }

// ToggleStore は店舗IDの選択状態を反転する。
func (sel *Selection) ToggleStore(id string) { sel.stores.toggle(id) }

// SelectAllUsers は表示中ユーザーに対する「すべて選択」トグルを実行する。
func (sel *Selection) SelectAllUsers(filtered []int64) { sel.users.selectAll(filtered) }

// SelectAllRoles は表示中ロールに対する「すべて選択」トグルを実行する。
func (sel *Selection) SelectAllRoles(filtered []int64) { sel.roles.selectAll(filtered) }

// SelectAllStores は表示中店舗に対する「すべて選択」トグルを実行する。
func (sel *Selection) SelectAllStores(filtered []string) { sel.stores.selectAll(filtered) }

// Clear は3集合すべてを空に戻す。
func (sel *Selection) Clear() {
	sel.users.clear()
	sel.roles.clear()
	sel.stores.clear()
}

// Users は選択中ユーザーIDを昇順で返す。
func (sel *Selection) Users() []int64 { return sel.users.sorted() }

// Roles は選択中ロールIDを昇順で返す。
func (sel *Selection) Roles() []int64 { return sel.roles.sorted() }

// Stores は選択中店舗IDを昇順で返す。
func (sel *Selection) Stores() []string { return sel.stores.sorted() }

// UsersSelected はユーザー選択ステップが完了しているかを返す。
func (sel *Selection) UsersSelected() bool { return sel.users.size() > 0 }

// RolesSelected はロール選択ステップが完了しているかを返す。
func (sel *Selection) RolesSelected() bool { return sel.roles.size() > 0 }

// StoresSelected は店舗選択ステップが完了しているかを返す。
func (sel *Selection) StoresSelected() bool { return sel.stores.size() > 0 }

// CompletedSteps は完了済みステップ数（0〜3）を返す。
func (sel *Selection) CompletedSteps() int {
	count := 0
	if sel.UsersSelected() {
		count++
	}
	if sel.RolesSelected() {
		count++
	}
	if sel.StoresSelected() {
		count++
	}
	return count
}

// ProgressPercentage は進捗率を返す。
// 値は必ず {0, 33.33…, 66.66…, 100} のいずれかとなる。
func (sel *Selection) ProgressPercentage() float64 {
	return float64(sel.CompletedSteps()) / totalSteps * 100
}

// CanSubmit は3ステップすべてが完了しているかを返す。
func (sel *Selection) CanSubmit() bool {
	return sel.CompletedSteps() == totalSteps
}
