package whatsapp

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/hitoshi/catman/internal/model"
)

// StatusClient はポーリング対象のAPI呼び出しインターフェース。
type StatusClient interface {
	Status(ctx context.Context) (*model.InstanceStatus, error)
	Health(ctx context.Context) (*model.WhatsAppHealth, error)
}

// PollMetrics はポーリングのメトリクス記録インターフェース。
type PollMetrics interface {
	RecordPollCycle(duration time.Duration)
	RecordPollError()
}

// PollerConfig はポーリング間隔の設定。
// 間隔は直近の接続状態に応じて動的に切り替わる。
type PollerConfig struct {
	DefaultInterval      time.Duration // 接続済み時。0の場合は7秒
	ConnectingInterval   time.Duration // 接続試行中。0の場合は3秒
	DisconnectedInterval time.Duration // 切断時。0の場合は10秒
}

// Snapshot はポーラーが保持する最新の観測結果を表す。
type Snapshot struct {
	Status    *model.InstanceStatus
	Health    *model.WhatsAppHealth
	Error     string // 表示言語に翻訳済みのエラーメッセージ。正常時は空
	UpdatedAt time.Time
}

// Poller はWhatsAppの接続状態を繰り返しタイマーで監視する。
// 接続試行中はより高頻度に、切断中は低頻度にポーリングし、
// コンテキストのキャンセルで確実に停止する（画面遷移後に
// 取り残されたポーリングを残さない）。
type Poller struct {
	client  StatusClient
	logger  *slog.Logger
	metrics PollMetrics
	config  PollerConfig

	mu       sync.RWMutex
	snapshot Snapshot
}

// NewPoller はPollerの新しいインスタンスを生成する。
// metricsがnilの場合、メトリクスは記録しない。
func NewPoller(client StatusClient, logger *slog.Logger, metrics PollMetrics, config PollerConfig) *Poller {
	if config.DefaultInterval <= 0 {
		config.DefaultInterval = 7 * time.Second
	}
	if config.ConnectingInterval <= 0 {
		config.ConnectingInterval = 3 * time.Second
	}
	if config.DisconnectedInterval <= 0 {
		config.DisconnectedInterval = 10 * time.Second
	}
	return &Poller{
		client: client,
		logger: logger, metrics: metrics,
		config: config,
	}
}

// Start はポーリングループを起動する。
// 起動直後に1回実行し、以降は直近の状態から導出した間隔で繰り返す。
// コンテキストがキャンセルされるまで実行を継続する（ブロッキング）。
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("WhatsAppステータスポーラーを開始しました",
		slog.Duration("default_interval", p.config.DefaultInterval),
	)

	interval := p.RunOnce(ctx)

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("WhatsAppステータスポーラーを停止しました")
			return
		case <-timer.C:
			interval = p.RunOnce(ctx)
			timer.Reset(interval)
		}
	}
}

// RunOnce はステータスとヘルスを1回取得してスナップショットを更新し、
// 次回のポーリング間隔を返す。2つの呼び出しは並行して実行する。
// 取得失敗時はエラーメッセージを記録し、前回のスナップショット値は維持する。
func (p *Poller) RunOnce(ctx context.Context) time.Duration {
	start := time.Now()

	var (
		wg        sync.WaitGroup
		status    *model.InstanceStatus
		health    *model.WhatsAppHealth
		statusErr error
		healthErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		status, statusErr = p.client.Status(ctx)
	}()
	go func() {
		defer wg.Done()
		health, healthErr = p.client.Health(ctx)
	}()
	wg.Wait()

	duration := time.Since(start)
	if p.metrics != nil {
		p.metrics.RecordPollCycle(duration)
	}

	if statusErr != nil || healthErr != nil {
		err := statusErr
		if err == nil {
			err = healthErr
		}
		p.recordError(err)
		// 失敗時は直前の状態に基づく間隔を維持する
		return p.NextInterval(p.lastStatusValue())
	}

	p.mu.Lock()
	p.snapshot = Snapshot{
		Status:    status,
		Health:    health,
		UpdatedAt: time.Now(),
	}
	p.mu.Unlock()

	return p.NextInterval(status.Status)
}

// NextInterval は接続状態から次回のポーリング間隔を導出する。
// 接続試行中はより高頻度、切断中は低頻度、それ以外はデフォルト間隔。
func (p *Poller) NextInterval(status string) time.Duration {
	switch status {
	case model.InstanceStatusConnecting:
		return p.config.ConnectingInterval
	case model.InstanceStatusClose:
		return p.config.DisconnectedInterval
	default:
		return p.config.DefaultInterval
	}
}

// Snapshot は最新の観測結果を返す。
func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot
}

// recordError は取得失敗をスナップショットへ記録する。
// ステータス・ヘルスの前回値は巻き戻さない。
func (p *Poller) recordError(err error) {
	message := translateNetworkError(err)

	p.mu.Lock()
	p.snapshot.Error = message
	p.snapshot.UpdatedAt = time.Now()
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.RecordPollError()
	}

	p.logger.Error("WhatsAppステータスの取得に失敗しました",
		slog.String("error", err.Error()),
	)
}

// lastStatusValue は直前に観測した接続状態を返す。未観測の場合は空文字列。
func (p *Poller) lastStatusValue() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.snapshot.Status == nil {
		return ""
	}
	return p.snapshot.Status.Status
}

// translateNetworkError はネットワーク系のエラーを表示言語のメッセージへ翻訳する。
func translateNetworkError(err error) string {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return "Timeout: Servidor demorou para responder"
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return "Erro de conexão: Verifique sua internet e tente novamente"
	}

	return err.Error()
}
