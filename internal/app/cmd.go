package app

// Command はアプリケーションの起動モードを表す。
// 空き時間検索はリクエストごとに外部カレンダーを取得するため、常駐ワーカーのモードは持たない。
type Command string

const (
	// CommandServe は空き時間検索APIサーバーとして起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate はユーザー・グループ・稼働時間・カレンダー連携のスキーマを適用することを示す。
	// compose では api より先に一度だけ実行する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}
