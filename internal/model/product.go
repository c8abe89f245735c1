// Package model はドメインモデルを定義する。
package model

// Product はカタログ掲載対象の商品を表す。
// フィールド名はバックエンド（ポルトガル語圏の業務システム）のJSONに合わせる。
type Product struct {
	Nome      string   `json:"nome"`
	Preco     *float64 `json:"preco"`
	SKU       string   `json:"sku"`
	Barcode   string   `json:"barcode"`
	ImagemURL *string  `json:"imagem_url"`
}

// ProductsResponse は商品一覧APIのレスポンスを表す。
type ProductsResponse struct {
	Success  bool      `json:"success"`
	Products []Product `json:"products"`
	Count    int       `json:"count"`
}

// PriceUpdateResponse は価格更新APIのレスポンスを表す。
type PriceUpdateResponse struct {
	Success   bool    `json:"success"`
	ProductID string  `json:"product_id"`
	NewPrice  float64 `json:"new_price"`
}

// CatalogRequest はカタログPDF生成リクエストを表す。
type CatalogRequest struct {
	SelectedProducts []Product `json:"selected_products"`
	Title            string    `json:"title,omitempty"`
}

// CatalogResponse はカタログPDF生成APIのレスポンスを表す。
type CatalogResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	FilePath string `json:"file_path,omitempty"`
	FileName string `json:"file_name,omitempty"`
}

// HealthResponse はバックエンドのヘルスチェックAPIのレスポンスを表す。
type HealthResponse struct {
	Status         string `json:"status"`
	NotionStatus   string `json:"notion_status"`
	ActiveProducts int    `json:"active_products"`
	Timestamp      string `json:"timestamp"`
}
