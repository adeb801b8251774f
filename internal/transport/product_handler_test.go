package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"storefront-catalog/internal/domain"
	"storefront-catalog/internal/middleware"
	"storefront-catalog/internal/repository"
	"storefront-catalog/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

// mockCatalogService records calls and returns canned results
type mockCatalogService struct {
	page       *domain.ProductPage
	detail     *domain.ProductDetail
	categories []string
	product    *domain.Product
	err        error

	lastFilters url.Values
	lastID      uuid.UUID
	lastInput   domain.ProductInput
	lastPatch   domain.ProductPatch
	calls       int
}

func (m *mockCatalogService) GetProducts(ctx context.Context, filters url.Values) (*domain.ProductPage, error) {
	m.calls++
	m.lastFilters = filters
	return m.page, m.err
}

func (m *mockCatalogService) GetProductByID(ctx context.Context, id uuid.UUID) (*domain.ProductDetail, error) {
	m.calls++
	m.lastID = id
	return m.detail, m.err
}

func (m *mockCatalogService) GetCategories(ctx context.Context) ([]string, error) {
	m.calls++
	return m.categories, m.err
}

func (m *mockCatalogService) CreateProduct(ctx context.Context, in domain.ProductInput) (*domain.Product, error) {
	m.calls++
	m.lastInput = in
	return m.product, m.err
}

func (m *mockCatalogService) UpdateProduct(ctx context.Context, id uuid.UUID, patch domain.ProductPatch) (*domain.Product, error) {
	m.calls++
	m.lastID = id
	m.lastPatch = patch
	return m.product, m.err
}

func (m *mockCatalogService) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	m.calls++
	m.lastID = id
	return m.err
}

func newTestRouter(svc service.CatalogService) http.Handler {
	logger := zap.NewNop()
	r := chi.NewRouter()
	passThrough := func(next http.Handler) http.Handler { return next }
	NewProductHandler(svc, logger).RegisterRoutes(r, middleware.AuthMiddleware(testSecret, logger), passThrough)
	return r
}

func adminToken(t *testing.T, role string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "ops-1",
		"role":    role,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func doRequest(handler http.Handler, method, target string, body interface{}, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func sampleProduct(name string) *domain.Product {
	return &domain.Product{
		ID:       uuid.New(),
		Name:     name,
		Category: "Audio",
		Brand:    "Acme",
		Price:    49.99,
		Images:   []domain.Image{},
		IsActive: true,
	}
}

func TestListProducts_Envelope(t *testing.T) {
	p := sampleProduct("Headphones")
	svc := &mockCatalogService{page: &domain.ProductPage{
		PaginatedResult: domain.NewPaginatedResult([]*domain.Product{p}, 2, 1, 3),
		Filters:         domain.FacetSummary{
			Brands:     []string{"Acme"},
			Categories: []string{"Audio"},
			PriceRange: domain.PriceRange{Min: 10, Max: 99},
		},
	}}

	w := doRequest(newTestRouter(svc), http.MethodGet, "/api/products?search=head&page=2&limit=1&brand=Acme", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success    bool                `json:"success"`
		Data       []domain.Product    `json:"data"`
		Pagination domain.Pagination   `json:"pagination"`
		Filters    domain.FacetSummary `json:"filters"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))

	assert.True(t, body.Success)
	require.Len(t, body.Data, 1)
	assert.Equal(t, p.ID, body.Data[0].ID)
	assert.Equal(t, domain.Pagination{Page: 2, Limit: 1, Total: 3, Pages: 3}, body.Pagination)
	assert.Equal(t, []string{"Acme"}, body.Filters.Brands)
	assert.Equal(t, 99.0, body.Filters.PriceRange.Max)

	assert.Equal(t, "head", svc.lastFilters.Get("search"))
	assert.Equal(t, "Acme", svc.lastFilters.Get("brand"))
}

func TestListProducts_StoreFailureIs500(t *testing.T) {
	svc := &mockCatalogService{err: &repository.StorageError{Op: "query", Table: "products", Err: errors.New("connection refused")}}

	w := doRequest(newTestRouter(svc), http.MethodGet, "/api/products", nil, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var body middleware.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.False(t, body.Success)
	assert.Equal(t, "failed to fetch products", body.Message)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestListCategories(t *testing.T) {
	svc := &mockCatalogService{categories: []string{"Audio", "Lighting"}}

	w := doRequest(newTestRouter(svc), http.MethodGet, "/api/products/categories", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool     `json:"success"`
		Data    []string `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, []string{"Audio", "Lighting"}, body.Data)
}

func TestGetProduct_WithRelatedProducts(t *testing.T) {
	p := sampleProduct("Lamp")
	related := sampleProduct("Bulb")
	svc := &mockCatalogService{detail: &domain.ProductDetail{Product: p, RelatedProducts: []*domain.Product{related}}}

	w := doRequest(newTestRouter(svc), http.MethodGet, "/api/products/"+p.ID.String(), nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			ID              uuid.UUID        `json:"id"`
			Name            string           `json:"name"`
			RelatedProducts []domain.Product `json:"relatedProducts"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, p.ID, body.Data.ID)
	assert.Equal(t, "Lamp", body.Data.Name)
	require.Len(t, body.Data.RelatedProducts, 1)
	assert.Equal(t, related.ID, body.Data.RelatedProducts[0].ID)
	assert.Equal(t, p.ID, svc.lastID)
}

func TestGetProduct_NotFound(t *testing.T) {
	svc := &mockCatalogService{err: service.ErrProductNotFound}

	w := doRequest(newTestRouter(svc), http.MethodGet, "/api/products/"+uuid.NewString(), nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	var body middleware.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.False(t, body.Success)
	assert.Equal(t, "Product not found", body.Message)
}

// Ids that are not UUIDs never reach the service and are reported as not found
func TestProperty_MalformedIDIsNotFound(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("non-uuid ids return 404 without a service call", prop.ForAll(
		func(id string) bool {
			svc := &mockCatalogService{}
			w := doRequest(newTestRouter(svc), http.MethodGet, "/api/products/"+url.PathEscape(id), nil, "")
			return w.Code == http.StatusNotFound && svc.calls == 0
		},
		gen.Identifier().SuchThat(func(s string) bool {
			_, err := uuid.Parse(s)
			return err != nil && s != "categories"
		}),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestAdminRoutes_RequireAdminToken(t *testing.T) {
	input := domain.ProductInput{Name: "Lamp", Category: "Lighting", Price: 20}
	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"customer role", adminToken(t, "customer"), http.StatusForbidden},
		{"admin role", adminToken(t, middleware.RoleAdmin), http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockCatalogService{product: sampleProduct("Lamp")}
			w := doRequest(newTestRouter(svc), http.MethodPost, "/api/products", input, tt.token)
			assert.Equal(t, tt.want, w.Code)
			if tt.want != http.StatusCreated {
				assert.Zero(t, svc.calls)
			}
		})
	}
}

func TestCreateProduct_ValidationErrors(t *testing.T) {
	svc := &mockCatalogService{}
	input := domain.ProductInput{Category: "Lighting", Price: -1}

	w := doRequest(newTestRouter(svc), http.MethodPost, "/api/products", input, adminToken(t, middleware.RoleAdmin))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, svc.calls)

	var body middleware.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	errs, ok := body.Error.Details["validation_errors"].([]interface{})
	require.True(t, ok)

	fields := make([]string, 0, len(errs))
	for _, e := range errs {
		fields = append(fields, e.(map[string]interface{})["field"].(string))
	}
	assert.ElementsMatch(t, []string{"name", "price"}, fields)
}

func TestCreateProduct_RejectsNonJSON(t *testing.T) {
	svc := &mockCatalogService{}
	req := httptest.NewRequest(http.MethodPost, "/api/products", bytes.NewBufferString("name=Lamp"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+adminToken(t, middleware.RoleAdmin))
	w := httptest.NewRecorder()

	newTestRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	assert.Zero(t, svc.calls)
}

func TestUpdateProduct_PartialPatch(t *testing.T) {
	updated := sampleProduct("Desk Lamp")
	svc := &mockCatalogService{product: updated}

	w := doRequest(newTestRouter(svc), http.MethodPut, "/api/products/"+updated.ID.String(),
		map[string]interface{}{"name": "Desk Lamp"}, adminToken(t, middleware.RoleAdmin))
	require.Equal(t, http.StatusOK, w.Code)

	require.NotNil(t, svc.lastPatch.Name)
	assert.Equal(t, "Desk Lamp", *svc.lastPatch.Name)
	assert.Nil(t, svc.lastPatch.Price)
	assert.Equal(t, updated.ID, svc.lastID)
}

func TestUpdateProduct_ValidatesImageURLs(t *testing.T) {
	svc := &mockCatalogService{product: sampleProduct("Lamp")}
	patch := map[string]interface{}{
		"images": []map[string]interface{}{{"url": "not a url", "isPrimary": true}},
	}

	w := doRequest(newTestRouter(svc), http.MethodPut, "/api/products/"+uuid.NewString(), patch, adminToken(t, middleware.RoleAdmin))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, svc.calls)

	var body middleware.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	errs, ok := body.Error.Details["validation_errors"].([]interface{})
	require.True(t, ok)
	require.Len(t, errs, 1)
	assert.Equal(t, "url", errs[0].(map[string]interface{})["field"])
}

func TestUpdateProduct_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"missing product", service.ErrProductNotFound, http.StatusNotFound},
		{"invalid result", fmt.Errorf("%w: rating average must be within [0,5]", domain.ErrInvalidProduct), http.StatusBadRequest},
		{"storage failure", &repository.StorageError{Op: "update", Table: "products", Err: errors.New("boom")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockCatalogService{err: tt.err}
			w := doRequest(newTestRouter(svc), http.MethodPut, "/api/products/"+uuid.NewString(),
				map[string]interface{}{"price": 10}, adminToken(t, middleware.RoleAdmin))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestDeleteProduct(t *testing.T) {
	id := uuid.New()
	svc := &mockCatalogService{}

	w := doRequest(newTestRouter(svc), http.MethodDelete, "/api/products/"+id.String(), nil, adminToken(t, middleware.RoleAdmin))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, svc.lastID)

	var body MessageResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.True(t, body.Success)
}
