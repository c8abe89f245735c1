package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/hitoshi/catman/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// fakeGateway はGatewayのテスト用実装。
// レスポンスはJSONエンコードしてoutにデコードし直すことで、実際の
// ゲートウェイと同じ構造変換を通す。
type fakeGateway struct {
	responses map[string]any
	err       error
	requests  []string
}

func (f *fakeGateway) RequestJSON(ctx context.Context, method, path string, payload any, out any, headers ...map[string]string) error {
	f.requests = append(f.requests, method+" "+path)
	if f.err != nil {
		return f.err
	}
	resp, ok := f.responses[path]
	if !ok {
		return fmt.Errorf("unexpected path: %s", path)
	}
	if out == nil {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// blockingGuard はImageURLValidatorのテスト用実装。
type blockingGuard struct {
	blocked map[string]bool
	calls   []string
}

func (g *blockingGuard) ValidateURL(rawURL string) error {
	g.calls = append(g.calls, rawURL)
	if g.blocked[rawURL] {
		return errors.New("blocked IP address: 169.254.169.254")
	}
	return nil
}

func floatPtr(v float64) *float64 { return &v }
func strPtr(s string) *string     { return &s }

func newTestCatalog(gw Gateway, guard ImageURLValidator) *Service {
	var buf bytes.Buffer
	return NewService(gw, guard, newTestLogger(&buf))
}

func TestProducts_ReturnsList(t *testing.T) {
	gw := &fakeGateway{responses: map[string]any{
		"/api/products": model.ProductsResponse{
			Products: []model.Product{
				{Nome: "Cerveja Lata 350ml", SKU: "42", Preco: floatPtr(4.5)},
				{Nome: "Refrigerante 2L", SKU: "43", Preco: floatPtr(9.9)},
			},
			Count: 2,
		},
	}}
	svc := newTestCatalog(gw, nil)

	products, err := svc.Products(context.Background())
	if err != nil {
		t.Fatalf("Products がエラーを返した: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("商品数 = %d, want 2", len(products))
	}
	if products[0].SKU != "42" {
		t.Errorf("SKU = %s, want 42", products[0].SKU)
	}
}

// TestUpdatePrice_MutatesOnlyMatchingEntry は価格更新の成功時に
// SKUが一致するエントリのみが書き換わることを検証する。
func TestUpdatePrice_MutatesOnlyMatchingEntry(t *testing.T) {
	gw := &fakeGateway{responses: map[string]any{
		"/api/products/42/price": model.PriceUpdateResponse{
			Success:   true,
			ProductID: "42",
			NewPrice:  19.9,
		},
	}}
	svc := newTestCatalog(gw, nil)

	products := []model.Product{
		{Nome: "Cerveja Lata 350ml", SKU: "42", Preco: floatPtr(4.5)},
		{Nome: "Refrigerante 2L", SKU: "43", Preco: floatPtr(9.9)},
	}

	if err := svc.UpdatePrice(context.Background(), products, "42", 19.9); err != nil {
		t.Fatalf("UpdatePrice がエラーを返した: %v", err)
	}

	if products[0].Preco == nil || *products[0].Preco != 19.9 {
		t.Errorf("SKU 42 の価格 = %v, want 19.9", products[0].Preco)
	}
	if products[1].Preco == nil || *products[1].Preco != 9.9 {
		t.Errorf("SKU 43 の価格 = %v, want 変更されない 9.9", products[1].Preco)
	}
}

func TestUpdatePrice_RejectedResponse(t *testing.T) {
	gw := &fakeGateway{responses: map[string]any{
		"/api/products/42/price": model.PriceUpdateResponse{Success: false},
	}}
	svc := newTestCatalog(gw, nil)

	products := []model.Product{{SKU: "42", Preco: floatPtr(4.5)}}
	if err := svc.UpdatePrice(context.Background(), products, "42", 19.9); err == nil {
		t.Error("success=false の応答でエラーが返らなかった")
	}
	if *products[0].Preco != 4.5 {
		t.Error("拒否された更新でローカルの価格が書き換わった")
	}
}

// TestGenerateCatalog_BlockedImageURL_SkipsAPICall は危険な画像URLを含む
// 選択でAPI呼び出しなしに失敗することを検証する。
func TestGenerateCatalog_BlockedImageURL_SkipsAPICall(t *testing.T) {
	gw := &fakeGateway{responses: map[string]any{}}
	guard := &blockingGuard{blocked: map[string]bool{
		"http://169.254.169.254/latest/meta-data": true,
	}}
	svc := newTestCatalog(gw, guard)

	selected := []model.Product{
		{Nome: "Produto Suspeito", SKU: "66", ImagemURL: strPtr("http://169.254.169.254/latest/meta-data")},
	}

	_, err := svc.GenerateCatalog(context.Background(), selected, "")
	if err == nil {
		t.Fatal("ブロック対象URLでエラーが返らなかった")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidImage {
		t.Errorf("エラー = %v, want INVALID_IMAGE_URL", err)
	}
	if len(gw.requests) != 0 {
		t.Errorf("API呼び出し = %v, want なし", gw.requests)
	}
}

func TestGenerateCatalog_Success(t *testing.T) {
	gw := &fakeGateway{responses: map[string]any{
		"/api/generate-catalog": model.CatalogResponse{
			FileName: "catalogo_ja_distribuidora.pdf",
			Message:  "Catálogo gerado com sucesso",
		},
	}}
	guard := &blockingGuard{}
	svc := newTestCatalog(gw, guard)

	selected := []model.Product{
		{Nome: "Cerveja Lata 350ml", SKU: "42", ImagemURL: strPtr("https://cdn.example.com/42.jpg")},
		{Nome: "Refrigerante 2L", SKU: "43"}, // 画像なしの商品は検証をスキップ
	}

	resp, err := svc.GenerateCatalog(context.Background(), selected, "Ofertas da Semana")
	if err != nil {
		t.Fatalf("GenerateCatalog がエラーを返した: %v", err)
	}
	if resp.FileName != "catalogo_ja_distribuidora.pdf" {
		t.Errorf("FileName = %s", resp.FileName)
	}
	if len(guard.calls) != 1 {
		t.Errorf("検証されたURL数 = %d, want 1 (画像なしはスキップ)", len(guard.calls))
	}
}

func TestGenerateCatalog_EmptySelection(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestCatalog(gw, nil)

	if _, err := svc.GenerateCatalog(context.Background(), nil, ""); err == nil {
		t.Error("空の選択でエラーが返らなかった")
	}
	if len(gw.requests) != 0 {
		t.Errorf("API呼び出し = %v, want なし", gw.requests)
	}
}

func TestHealth(t *testing.T) {
	gw := &fakeGateway{responses: map[string]any{
		"/api/health": model.HealthResponse{Status: "healthy"},
	}}
	svc := newTestCatalog(gw, nil)

	resp, err := svc.Health(context.Background())
	if err != nil {
		t.Fatalf("Health がエラーを返した: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("Status = %s, want healthy", resp.Status)
	}
}

// TestProducts_GatewayErrorIsPropagated はゲートウェイのエラー（セッション
// 失効を含む）がそのまま伝搬することを検証する。
func TestProducts_GatewayErrorIsPropagated(t *testing.T) {
	gw := &fakeGateway{err: model.NewSessionExpiredError()}
	svc := newTestCatalog(gw, nil)

	_, err := svc.Products(context.Background())
	if !model.IsSessionExpired(err) {
		t.Errorf("エラー = %v, want セッション失効エラー", err)
	}
}
