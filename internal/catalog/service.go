// Package catalog は商品一覧の取得・価格更新・カタログPDF生成を提供する。
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/catman/internal/model"
)

// Gateway は認証付きAPIリクエストのインターフェース。
// 実装はinternal/gatewayのClient。
type Gateway interface {
	RequestJSON(ctx context.Context, method, path string, payload any, out any, headers ...map[string]string) error
}

// ImageURLValidator は商品画像URLの事前検証インターフェース。
// 実装はinternal/securityのURLガード。
type ImageURLValidator interface {
	ValidateURL(rawURL string) error
}

// Service はカタログ関連のAPI操作を提供する。
type Service struct {
	gw     Gateway
	guard  ImageURLValidator
	logger *slog.Logger
}

// NewService はServiceを生成する。
// guardがnilの場合、画像URLの事前検証は行わない。
func NewService(gw Gateway, guard ImageURLValidator, logger *slog.Logger) *Service {
	return &Service{
		gw:     gw,
		guard:  guard,
		logger: logger,
	}
}

// Products は有効な商品の一覧を取得する。
func (s *Service) Products(ctx context.Context) ([]model.Product, error) {
	var resp model.ProductsResponse
	if err := s.gw.RequestJSON(ctx, http.MethodGet, "/api/products", nil, &resp); err != nil {
		return nil, err
	}

	s.logger.Info("商品一覧を取得しました", slog.Int("count", resp.Count))
	return resp.Products, nil
}

// UpdatePrice は指定商品の価格を更新し、成功時はローカルの商品スライスの
// 該当エントリ（SKUがレスポンスのproduct_idと一致するもの）のみを書き換える。
// 他のエントリには一切触れない。
func (s *Service) UpdatePrice(ctx context.Context, products []model.Product, productID string, newPrice float64) error {
	payload := map[string]float64{"new_price": newPrice}

	var resp model.PriceUpdateResponse
	path := "/api/products/" + productID + "/price"
	if err := s.gw.RequestJSON(ctx, http.MethodPut, path, payload, &resp); err != nil {
		return err
	}

	if !resp.Success {
		return fmt.Errorf("price update was rejected for product %s", productID)
	}

	for i := range products {
		if products[i].SKU == resp.ProductID {
			price := resp.NewPrice
			products[i].Preco = &price
		}
	}

	s.logger.Info("商品価格を更新しました",
		slog.String("product_id", resp.ProductID),
		slog.Float64("new_price", resp.NewPrice),
	)
	return nil
}

// GenerateCatalog は選択された商品からカタログPDFの生成を要求し、
// 生成されたファイル名を含むレスポンスを返す。
// 送信前に各商品の画像URLを検証し、プライベートネットワーク等を指す
// URLが含まれる場合は生成を要求せずに失敗する（PDF生成側のサーバーに
// 危険なURLをフェッチさせないための事前チェック）。
func (s *Service) GenerateCatalog(ctx context.Context, selected []model.Product, title string) (*model.CatalogResponse, error) {
	if len(selected) == 0 {
		return nil, fmt.Errorf("no products selected for catalog generation")
	}

	if s.guard != nil {
		for _, p := range selected {
			if p.ImagemURL == nil || *p.ImagemURL == "" {
				continue
			}
			if err := s.guard.ValidateURL(*p.ImagemURL); err != nil {
				return nil, model.NewInvalidImageURLError(p.Nome, err.Error())
			}
		}
	}

	req := model.CatalogRequest{
		SelectedProducts: selected,
		Title:            title,
	}

	var resp model.CatalogResponse
	if err := s.gw.RequestJSON(ctx, http.MethodPost, "/api/generate-catalog", req, &resp); err != nil {
		return nil, err
	}

	s.logger.Info("カタログ生成を完了しました",
		slog.String("file_name", resp.FileName),
		slog.Int("product_count", len(selected)),
	)
	return &resp, nil
}

// Health はバックエンドのヘルス状態を取得する。
func (s *Service) Health(ctx context.Context) (*model.HealthResponse, error) {
	var resp model.HealthResponse
	if err := s.gw.RequestJSON(ctx, http.MethodGet, "/api/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
