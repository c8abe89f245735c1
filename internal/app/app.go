// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
// サブコマンドごとの一回実行モードと、長時間稼働するローカルエージェント
// モードの両方をここで組み立てる。
package app

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/catman/internal/agent"
	"github.com/hitoshi/catman/internal/auth"
	"github.com/hitoshi/catman/internal/catalog"
	"github.com/hitoshi/catman/internal/config"
	"github.com/hitoshi/catman/internal/download"
	"github.com/hitoshi/catman/internal/gateway"
	"github.com/hitoshi/catman/internal/logger"
	"github.com/hitoshi/catman/internal/metrics"
	"github.com/hitoshi/catman/internal/model"
	"github.com/hitoshi/catman/internal/platform"
	"github.com/hitoshi/catman/internal/security"
	"github.com/hitoshi/catman/internal/session"
	"github.com/hitoshi/catman/internal/store"
	"github.com/hitoshi/catman/internal/validate"
	"github.com/hitoshi/catman/internal/whatsapp"
	"github.com/hitoshi/catman/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで実行する。
// argsにはos.Args[1:]を渡す。ユーザー向け出力はwに書き込む。
func Run(w io.Writer, args []string) error {
	cmd, rest := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("AGENT_PORT")
		if port == "" {
			port = "8090"
		}
		return runHealthcheck(port)
	}

	// ログはstderr、ユーザー向け表示はw（通常stdout）に分離する
	cfg, err := Init(nil)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	if cmd == CommandMigrate {
		return runMigrate(cfg)
	}

	rt, err := newRuntime(w, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := context.Background()

	switch cmd {
	case CommandLogin:
		return rt.runLogin(ctx, rest)
	case CommandRegister:
		return rt.runRegister(ctx, rest)
	case CommandLogout:
		return rt.runLogout(ctx)
	case CommandWhoami:
		return rt.runWhoami(ctx)
	case CommandProducts:
		return rt.runProducts(ctx)
	case CommandPrice:
		return rt.runPrice(ctx, rest)
	case CommandGenerate:
		return rt.runGenerate(ctx, rest)
	case CommandDownload:
		return rt.runDownload(ctx, rest)
	case CommandHistory:
		return rt.runHistory(ctx)
	case CommandStatus:
		return rt.runStatus(ctx)
	case CommandQR:
		return rt.runQR(ctx)
	case CommandRestart:
		return rt.runRestart(ctx)
	case CommandDisconnect:
		return rt.runDisconnect(ctx)
	case CommandCreateUser:
		return rt.runCreateUser(ctx, rest)
	case CommandRefresh:
		return rt.runRefresh(ctx)
	default:
		return rt.runAgent(ctx, cfg)
	}
}

// writerNotifier はトースト通知の代わりにwriterへ1行メッセージを書き出す。
type writerNotifier struct {
	w io.Writer
}

func (n *writerNotifier) Success(message string) {
	fmt.Fprintln(n.w, message)
}

func (n *writerNotifier) Error(message string) {
	fmt.Fprintln(n.w, "Erro: "+message)
}

// appRuntime は全サブコマンドが共有する依存関係のセット。
type appRuntime struct {
	out       io.Writer
	cfg       *config.Config
	registry  *prometheus.Registry
	collector *metrics.Collector

	store      *store.Store
	auth       *auth.Service
	gw         *gateway.Client
	session    *session.Manager
	catalog    *catalog.Service
	downloader *download.Downloader
	whatsapp   *whatsapp.Client
	poller     *whatsapp.Poller
	cleanup    *cleanup.CleanupJob
	validator  *validate.Validator
}

// newRuntime は全依存関係をワイヤリングする。
// ローカル状態DBのマイグレーションは起動のたびに適用する（冪等）。
func newRuntime(w io.Writer, cfg *config.Config) (*appRuntime, error) {
	// 1. ローカル状態ストア
	if err := store.RunMigrations(cfg.StatePath); err != nil {
		return nil, fmt.Errorf("failed to migrate state store: %w", err)
	}
	st, err := store.Open(cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. セキュリティサービス
	urlGuard := security.NewURLGuard()

	// 4. 認証サービスとセッションマネージャー
	httpClient := &http.Client{Timeout: 30 * time.Second}
	authService := auth.NewService(httpClient, st, slog.Default(), auth.ServiceConfig{
		BaseURL:            cfg.APIBaseURL,
		CurrentUserTimeout: cfg.CurrentUserTimeout,
		LogoutTimeout:      cfg.LogoutTimeout,
	})

	notifier := &writerNotifier{w: w}
	sessionManager := session.NewManager(authService, notifier, collector, slog.Default())

	// 5. APIゲートウェイ
	// 401横取り時の画面遷移の代わりに、再ログインの案内を表示する
	navigate := func(path string) {
		fmt.Fprintln(w, "Sessão encerrada. Use 'catman login' para entrar novamente.")
	}
	gw := gateway.NewClient(httpClient, authService, navigate, slog.Default(), collector, gateway.Config{
		BaseURL:    cfg.APIBaseURL,
		RatePerSec: cfg.RequestRatePerSec,
		Burst:      cfg.RequestBurst,
	})

	// 6. ドメインサービス
	catalogService := catalog.NewService(gw, urlGuard, slog.Default())

	profile := platform.Detect(cfg.ClientUserAgent)
	var opener download.Opener
	if platform.DownloadMethod(profile) == platform.MethodWindowOpen {
		opener = openFile
	}
	downloader := download.NewDownloader(gw, st, opener, slog.Default(), cfg.DownloadDir)

	// WhatsApp連携は外部サービスのため、SSRF防止付きクライアントで呼び出す
	waClient := whatsapp.NewClient(
		urlGuard.NewSafeClient(10*time.Second),
		slog.Default(), cfg.WhatsAppAPIURL, cfg.WhatsAppTenantID,
	)
	poller := whatsapp.NewPoller(waClient, slog.Default(), collector, whatsapp.PollerConfig{
		DefaultInterval:      cfg.PollInterval,
		ConnectingInterval:   cfg.PollIntervalConnecting,
		DisconnectedInterval: cfg.PollIntervalDisconnected,
	})

	// 7. クリーンアップジョブ
	cleanupJob := cleanup.NewCleanupJob(st, slog.Default(), cfg.DownloadDir)
	if cfg.HistoryRetentionDays > 0 {
		cleanupJob.RetentionDays = cfg.HistoryRetentionDays
	}

	return &appRuntime{
		out:        w,
		cfg:        cfg,
		registry:   registry,
		collector:  collector,
		store:      st,
		auth:       authService,
		gw:         gw,
		session:    sessionManager,
		catalog:    catalogService,
		downloader: downloader,
		whatsapp:   waClient,
		poller:     poller,
		cleanup:    cleanupJob,
		validator:  validate.New(),
	}, nil
}

// Close は保持しているリソースを解放する。
func (rt *appRuntime) Close() {
	rt.session.Close()
	if err := rt.store.Close(); err != nil {
		slog.Warn("ローカル状態ストアのクローズに失敗しました", slog.String("error", err.Error()))
	}
}

// runLogin はログインを実行する。
// 入力検証に失敗した場合はネットワーク呼び出しを行わずに失敗する。
func (rt *appRuntime) runLogin(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: catman login <email> <password>")
	}

	credentials := model.Credentials{Email: args[0], Password: args[1]}
	if err := rt.validator.Struct(credentials); err != nil {
		fmt.Fprintln(rt.out, "Erro: "+err.Error())
		return err
	}

	return rt.session.Login(ctx, credentials)
}

// runRegister は新規登録とそのままのログインを実行する。
func (rt *appRuntime) runRegister(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: catman register <email> <full-name> <password>")
	}

	data := model.RegisterData{Email: args[0], FullName: args[1], Password: args[2]}
	if err := rt.validator.Struct(data); err != nil {
		fmt.Fprintln(rt.out, "Erro: "+err.Error())
		return err
	}

	result, err := rt.auth.Register(ctx, data)
	if err != nil {
		fmt.Fprintln(rt.out, "Erro: "+err.Error())
		return err
	}

	fmt.Fprintf(rt.out, "Bem-vindo, %s!\n", result.User.FullName)
	return nil
}

// runLogout はログアウトを実行する。失敗しない操作。
func (rt *appRuntime) runLogout(ctx context.Context) error {
	return rt.session.Logout(ctx)
}

// runWhoami は現在のユーザーを表示する。
func (rt *appRuntime) runWhoami(ctx context.Context) error {
	if !rt.auth.IsAuthenticated(ctx) {
		return fmt.Errorf("não autenticado. Use 'catman login' para entrar")
	}

	user, err := rt.auth.CurrentUser(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(rt.out, "%s <%s> (%s)\n", user.FullName, user.Email, user.Role)
	return nil
}

// runProducts は商品一覧を表示する。
func (rt *appRuntime) runProducts(ctx context.Context) error {
	products, err := rt.catalog.Products(ctx)
	if err != nil {
		return err
	}

	for _, p := range products {
		price := "-"
		if p.Preco != nil {
			price = fmt.Sprintf("R$ %.2f", *p.Preco)
		}
		fmt.Fprintf(rt.out, "%s\t%s\t%s\n", p.SKU, p.Nome, price)
	}
	fmt.Fprintf(rt.out, "%d produtos\n", len(products))
	return nil
}

// runPrice は商品価格を更新する。
func (rt *appRuntime) runPrice(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: catman price <product-id> <new-price>")
	}

	newPrice, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid price %q: %w", args[1], err)
	}

	products, err := rt.catalog.Products(ctx)
	if err != nil {
		return err
	}

	if err := rt.catalog.UpdatePrice(ctx, products, args[0], newPrice); err != nil {
		return err
	}

	fmt.Fprintf(rt.out, "Preço atualizado: %s -> R$ %.2f\n", args[0], newPrice)
	return nil
}

// runGenerate は選択した商品からカタログPDFを生成し、そのまま取得する。
func (rt *appRuntime) runGenerate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.SetOutput(rt.out)
	title := fs.String("title", "", "título do catálogo")
	if err := fs.Parse(args); err != nil {
		return err
	}

	skus := fs.Args()
	if len(skus) == 0 {
		return fmt.Errorf("usage: catman generate [-title <title>] <sku>...")
	}

	products, err := rt.catalog.Products(ctx)
	if err != nil {
		return err
	}

	wanted := make(map[string]bool, len(skus))
	for _, sku := range skus {
		wanted[sku] = true
	}
	var selected []model.Product
	for _, p := range products {
		if wanted[p.SKU] {
			selected = append(selected, p)
		}
	}
	if len(selected) != len(skus) {
		return fmt.Errorf("produtos não encontrados: selecionados %d de %d", len(selected), len(skus))
	}

	resp, err := rt.catalog.GenerateCatalog(ctx, selected, *title)
	if err != nil {
		return err
	}

	profile := platform.Detect(rt.cfg.ClientUserAgent)
	savedPath, err := rt.downloader.Download(ctx, resp.FileName, profile, len(selected))
	if err != nil {
		return err
	}
	rt.collector.RecordDownload()

	fmt.Fprintf(rt.out, "Catálogo gerado: %s\n", savedPath)
	return nil
}

// runDownload は生成済みカタログをファイル名で取得する。
func (rt *appRuntime) runDownload(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: catman download <file-name>")
	}

	profile := platform.Detect(rt.cfg.ClientUserAgent)
	savedPath, err := rt.downloader.Download(ctx, args[0], profile, 0)
	if err != nil {
		return err
	}
	rt.collector.RecordDownload()

	fmt.Fprintf(rt.out, "Download concluído: %s\n", savedPath)
	return nil
}

// runHistory はダウンロード履歴を新しい順に表示する。
func (rt *appRuntime) runHistory(ctx context.Context) error {
	records, err := rt.store.ListDownloads(ctx)
	if err != nil {
		return err
	}

	for _, rec := range records {
		fmt.Fprintf(rt.out, "%s\t%s\t%d bytes\t%d produtos\n",
			rec.CreatedAt.Format("2006-01-02 15:04"),
			rec.FileName, rec.SizeBytes, rec.ProductCount,
		)
	}
	fmt.Fprintf(rt.out, "%d downloads\n", len(records))
	return nil
}

// runStatus はWhatsApp接続状態を1回取得して表示する。
func (rt *appRuntime) runStatus(ctx context.Context) error {
	rt.poller.RunOnce(ctx)
	snap := rt.poller.Snapshot()

	if snap.Error != "" {
		return fmt.Errorf("%s", snap.Error)
	}

	fmt.Fprintf(rt.out, "WhatsApp: %s", snap.Status.Status)
	if snap.Status.PhoneNumber != "" {
		fmt.Fprintf(rt.out, " (%s)", snap.Status.PhoneNumber)
	}
	fmt.Fprintln(rt.out)
	return nil
}

// runQR はWhatsApp接続用QRコードを取得して表示する。
// 返される文字列はそのままQRコード画像のdata URI。
func (rt *appRuntime) runQR(ctx context.Context) error {
	qr, err := rt.whatsapp.QRCode(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(rt.out, qr.QRCode)
	if qr.ExpiresAt != "" {
		fmt.Fprintf(rt.out, "Válido até: %s\n", qr.ExpiresAt)
	}
	return nil
}

// runRestart はWhatsAppインスタンスを再起動する。
func (rt *appRuntime) runRestart(ctx context.Context) error {
	if err := rt.whatsapp.Restart(ctx); err != nil {
		return err
	}

	fmt.Fprintln(rt.out, "Instância WhatsApp reiniciada. Aguarde a reconexão.")
	return nil
}

// runDisconnect はWhatsAppインスタンスを削除する（恒久的な切断）。
func (rt *appRuntime) runDisconnect(ctx context.Context) error {
	if err := rt.whatsapp.DeleteInstance(ctx); err != nil {
		return err
	}

	fmt.Fprintln(rt.out, "Instância WhatsApp removida. Use 'catman qr' para conectar novamente.")
	return nil
}

// runCreateUser は管理者権限で新規ユーザーを作成する。
func (rt *appRuntime) runCreateUser(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	fs.SetOutput(rt.out)
	role := fs.String("role", "user", "função do novo usuário (admin ou user)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) != 3 {
		return fmt.Errorf("usage: catman create-user [-role admin|user] <email> <full-name> <password>")
	}

	data := model.CreateUserData{Email: rest[0], FullName: rest[1], Password: rest[2], Role: *role}
	if err := rt.validator.Struct(data); err != nil {
		fmt.Fprintln(rt.out, "Erro: "+err.Error())
		return err
	}

	user, err := rt.auth.CreateUser(ctx, data)
	if err != nil {
		fmt.Fprintln(rt.out, "Erro: "+err.Error())
		return err
	}

	fmt.Fprintf(rt.out, "Usuário criado: %s <%s> (%s)\n", user.FullName, user.Email, user.Role)
	return nil
}

// runRefresh はプロフィールを明示的に再取得して表示する。
// 再取得の失敗はフルログアウトに落ちる（起動時のバックグラウンド検証とは
// 異なり、明示的なリフレッシュは失敗を許容しない）。
func (rt *appRuntime) runRefresh(ctx context.Context) error {
	if err := rt.session.RefreshUser(ctx); err != nil {
		return err
	}

	user := rt.session.User()
	if user == nil {
		return fmt.Errorf("não autenticado. Use 'catman login' para entrar")
	}

	fmt.Fprintf(rt.out, "Perfil atualizado: %s <%s> (%s)\n", user.FullName, user.Email, user.Role)
	return nil
}

// runAgent はローカルエージェントモードで起動する。
// セッションを復元し、WhatsAppポーラーとクリーンアップジョブを
// バックグラウンドで動かしつつ、読み取り用HTTPサーフェスを公開する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func (rt *appRuntime) runAgent(ctx context.Context, cfg *config.Config) error {
	agentCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 1. セッションの復元（楽観的リストア + バックグラウンド検証）
	rt.session.Init(agentCtx)

	// 2. バックグラウンドワーカー
	go rt.poller.Start(agentCtx)

	go func() {
		// 起動直後に1回実行
		if err := rt.cleanup.Run(agentCtx); err != nil {
			slog.Error("cleanup job failed", slog.String("error", err.Error()))
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-agentCtx.Done():
				return
			case <-ticker.C:
				if err := rt.cleanup.Run(agentCtx); err != nil {
					slog.Error("cleanup job failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	// 3. HTTPサーフェスの起動
	router := agent.NewRouter(&agent.RouterDeps{
		Session:  rt.session,
		Status:   rt.poller,
		Health:   rt.store.DB(),
		Gatherer: rt.registry,
		Logger:   slog.Default(),
	})

	server := &http.Server{
		Addr:         "127.0.0.1:" + cfg.AgentPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("local agent starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down local agent...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("local agent stopped gracefully")
	return nil
}

// runMigrate はローカル状態DBのマイグレーションを明示的に実行する。
// 通常はnewRuntimeが起動のたびに適用するため、壊れたDBの復旧用。
func runMigrate(cfg *config.Config) error {
	slog.Info("running state store migrations",
		slog.String("state_path", cfg.StatePath),
	)

	if err := store.RunMigrations(cfg.StatePath); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("state store migrations completed successfully")
	return nil
}

// runHealthcheck はローカルエージェントのヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// openFile は保存済みファイルをOS標準のビューアーで開く。
// window-open戦略の配送フックとして使用する。
func openFile(path string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", path).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", path).Start()
	default:
		return exec.Command("xdg-open", path).Start()
	}
}
