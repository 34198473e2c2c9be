package user

import "github.com/hitoshi/codemeet/internal/model"

// SkipLookup はidentityが無い場合に渡す「検索しない」ことを示す値。
const SkipLookup = ""

// LookupResult はディレクトリ検索の状態を表す。
// Doneがfalseの間は検索が未完了で、Done && Record == nil はレコードが存在しないことを示す。
type LookupResult struct {
	Done   bool
	Record *model.User
}

// ResolveRole は検索状態からロール判定を導出する。
// 未完了の間はIsLoadingのみtrue、レコードが無い場合は全てfalseとなる。
func ResolveRole(r LookupResult) model.RoleView {
	if !r.Done {
		return model.RoleView{IsLoading: true}
	}
	if r.Record == nil {
		return model.RoleView{}
	}
	return model.RoleView{
		IsInterviewer: r.Record.Role == model.RoleInterviewer,
		IsCandidate:   r.Record.Role == model.RoleCandidate,
	}
}
