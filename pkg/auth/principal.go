package auth

// Principal は認証済みの利用者を表す。
// ログインまたはトークン検証に成功した直後にのみ生成される。
type Principal struct {
	// Username はユーザー名。トークンのsubクレームに対応する。
	Username string `json:"username"`
	// Role はユーザーのロール（admin, user など）。
	Role string `json:"role"`
}
