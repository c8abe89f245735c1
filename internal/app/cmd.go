package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandAgent はローカルエージェントモードで起動することを示す。
	CommandAgent Command = "agent"
	// CommandLogin はログインを実行することを示す。
	CommandLogin Command = "login"
	// CommandRegister は新規登録を実行することを示す。
	CommandRegister Command = "register"
	// CommandLogout はログアウトを実行することを示す。
	CommandLogout Command = "logout"
	// CommandWhoami は現在のユーザーを表示することを示す。
	CommandWhoami Command = "whoami"
	// CommandProducts は商品一覧を表示することを示す。
	CommandProducts Command = "products"
	// CommandPrice は商品価格を更新することを示す。
	CommandPrice Command = "price"
	// CommandGenerate はカタログPDFを生成・取得することを示す。
	CommandGenerate Command = "generate"
	// CommandDownload は生成済みカタログを取得することを示す。
	CommandDownload Command = "download"
	// CommandHistory はダウンロード履歴を表示することを示す。
	CommandHistory Command = "history"
	// CommandStatus はWhatsApp接続状態を表示することを示す。
	CommandStatus Command = "status"
	// CommandQR はWhatsApp接続用QRコードを取得することを示す。
	CommandQR Command = "qr"
	// CommandRestart はWhatsAppインスタンスを再起動することを示す。
	CommandRestart Command = "restart"
	// CommandDisconnect はWhatsAppインスタンスを削除（恒久切断）することを示す。
	CommandDisconnect Command = "disconnect"
	// CommandCreateUser は管理者権限で新規ユーザーを作成することを示す。
	CommandCreateUser Command = "create-user"
	// CommandRefresh はユーザープロフィールを再取得することを示す。
	CommandRefresh Command = "refresh"
	// CommandMigrate はローカル状態DBのマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はローカルエージェントのヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドと残りの引数を解析する。
// 引数が空またはサポート外のコマンドの場合はCommandAgentを返す。
func ParseCommand(args []string) (Command, []string) {
	if len(args) == 0 {
		return CommandAgent, nil
	}

	switch args[0] {
	case "agent":
		return CommandAgent, args[1:]
	case "login":
		return CommandLogin, args[1:]
	case "register":
		return CommandRegister, args[1:]
	case "logout":
		return CommandLogout, args[1:]
	case "whoami":
		return CommandWhoami, args[1:]
	case "products":
		return CommandProducts, args[1:]
	case "price":
		return CommandPrice, args[1:]
	case "generate":
		return CommandGenerate, args[1:]
	case "download":
		return CommandDownload, args[1:]
	case "history":
		return CommandHistory, args[1:]
	case "status":
		return CommandStatus, args[1:]
	case "qr":
		return CommandQR, args[1:]
	case "restart":
		return CommandRestart, args[1:]
	case "disconnect":
		return CommandDisconnect, args[1:]
	case "create-user":
		return CommandCreateUser, args[1:]
	case "refresh":
		return CommandRefresh, args[1:]
	case "migrate":
		return CommandMigrate, args[1:]
	case "healthcheck":
		return CommandHealthcheck, args[1:]
	default:
		return CommandAgent, args
	}
}
