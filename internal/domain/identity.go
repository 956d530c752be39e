package domain

// IdentityClass は認証結果の区分を表す。
type IdentityClass string

const (
	// IdentityAdministrator はマスターキーによる管理者を表す。
	IdentityAdministrator IdentityClass = "administrator"
	// IdentityClient はクライアントキーによる認証済みアプリケーションを表す。
	IdentityClient IdentityClass = "client"
	// IdentityAnonymous は未認証の呼び出し元を表す。
	IdentityAnonymous IdentityClass = "anonymous"
)

// Identity はリクエスト単位の認証結果を表す。永続化されない。
type Identity struct {
	Class   IdentityClass
	KeyID   string // IdentityClientの場合のみ
	AppName string // IdentityClientの場合のみ
}

// Administrator は管理者アイデンティティを返す。
func Administrator() Identity {
	return Identity{Class: IdentityAdministrator}
}

// Client はクライアントアイデンティティを返す。
func Client(keyID, appName string) Identity {
	return Identity{Class: IdentityClient, KeyID: keyID, AppName: appName}
}

// Anonymous は未認証アイデンティティを返す。
func Anonymous() Identity {
	return Identity{Class: IdentityAnonymous}
}
