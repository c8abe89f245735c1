// Package model はドメインモデルを定義する。
package model

// WhatsApp接続状態の値。Evolution API互換のステータス文字列。
const (
	// InstanceStatusOpen は接続済みを示す。
	InstanceStatusOpen = "open"
	// InstanceStatusClose は切断済みを示す。
	InstanceStatusClose = "close"
	// InstanceStatusConnecting は接続試行中を示す。
	InstanceStatusConnecting = "connecting"
)

// InstanceStatus はWhatsAppインスタンスの接続状態を表す。
type InstanceStatus struct {
	InstanceName string `json:"instanceName"`
	Status       string `json:"status"` // open / close / connecting
	PhoneNumber  string `json:"phoneNumber,omitempty"`
	TenantID     string `json:"tenantId,omitempty"`
}

// WhatsAppHealth はWhatsApp連携サービスのヘルス状態を表す。
type WhatsAppHealth struct {
	Status            string `json:"status"` // healthy / unhealthy
	EvolutionAPI      bool   `json:"evolutionApi"`
	Timestamp         string `json:"timestamp"`
	InstancesCount    int    `json:"instancesCount,omitempty"`
	ActiveConnections int    `json:"activeConnections,omitempty"`
}

// QRCode はWhatsApp接続用QRコードのレスポンスを表す。
type QRCode struct {
	QRCode       string `json:"qrCode"`
	InstanceName string `json:"instanceName,omitempty"`
	ExpiresAt    string `json:"expiresAt,omitempty"`
}
