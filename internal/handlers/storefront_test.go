package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"finitefield.org/storefront/internal/cms"
	"finitefield.org/storefront/internal/mail"
)

func TestSearchRejectsShortQuery(t *testing.T) {
	router, store := newMemoryRouter(t)
	rr := serve(router, httptest.NewRequest(http.MethodGet, "/search?q=a", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error"] != "Search query must be at least 2 characters long" {
		t.Fatalf("unexpected error %v", body["error"])
	}
	if store.count() != 0 {
		t.Fatalf("expected no store queries, got %d", store.count())
	}
}

func TestSearchFindsProductsByDescription(t *testing.T) {
	router, _ := newMemoryRouter(t)
	rr := serve(router, httptest.NewRequest(http.MethodGet, "/search?q="+url.QueryEscape("jordan shoe"), nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var result struct {
		Products []struct {
			ID string `json:"id"`
		} `json:"products"`
		Categories   []any `json:"categories"`
		TotalResults int   `json:"totalResults"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Products) != 1 || result.Products[0].ID != "p-jordan" {
		t.Fatalf("expected the jordan product, got %+v", result.Products)
	}
	if result.Categories == nil {
		t.Fatalf("expected categories to be an empty list, not null")
	}
	if result.TotalResults != 1 {
		t.Fatalf("expected totalResults 1, got %d", result.TotalResults)
	}
}

func TestSearchLimitParsing(t *testing.T) {
	cases := []struct {
		name     string
		limit    string
		products int
		articles int
	}{
		{name: "default", limit: "", products: 20, articles: 5},
		{name: "malformed", limit: "ten", products: 20, articles: 5},
		{name: "clamped high", limit: "500", products: 100, articles: 25},
		{name: "clamped low", limit: "0", products: 1, articles: -1},
		{name: "explicit", limit: "8", products: 8, articles: 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router, store := newMemoryRouter(t)
			target := "/search?q=air"
			if tc.limit != "" {
				target += "&limit=" + tc.limit
			}
			rr := serve(router, httptest.NewRequest(http.MethodGet, target, nil))
			if rr.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", rr.Code)
			}
			if got := store.limitFor(cms.KindProducts); got != tc.products {
				t.Fatalf("expected product limit %d, got %d", tc.products, got)
			}
			if got := store.limitFor(cms.KindArticles); got != tc.articles {
				t.Fatalf("expected article limit %d, got %d", tc.articles, got)
			}
		})
	}
}

func TestSearchTypeSelectsKind(t *testing.T) {
	router, store := newMemoryRouter(t)
	rr := serve(router, httptest.NewRequest(http.MethodGet, "/search?q=running&type=category", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if store.limitFor(cms.KindProducts) != -1 {
		t.Fatalf("expected products not to be queried")
	}
	body := decodeBody(t, rr)
	categories, _ := body["categories"].([]any)
	if len(categories) != 1 {
		t.Fatalf("expected one category, got %v", body["categories"])
	}
}

func TestSearchUnknownTypeIsEmpty(t *testing.T) {
	router, store := newMemoryRouter(t)
	rr := serve(router, httptest.NewRequest(http.MethodGet, "/search?q=air&type=videos", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if store.count() != 0 {
		t.Fatalf("expected no store queries, got %d", store.count())
	}
	if body := decodeBody(t, rr); body["totalResults"] != float64(0) {
		t.Fatalf("expected zero results, got %v", body["totalResults"])
	}
}

func TestSearchDegradesOnStoreFailure(t *testing.T) {
	store := &recordingStore{inner: cms.NewMemoryStore(testObjects()...), err: &cms.StoreError{Op: "find", Status: http.StatusBadGateway}}
	router := newTestRouter(t, store, nil)
	rr := serve(router, httptest.NewRequest(http.MethodGet, "/search?q=air", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["totalResults"] != float64(0) {
		t.Fatalf("expected zero results, got %v", body["totalResults"])
	}
}

func TestInlineSearch(t *testing.T) {
	router, store := newMemoryRouter(t)
	rr := serve(router, httptest.NewRequest(http.MethodGet, "/inline-search?q=ai", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if store.count() != 0 {
		t.Fatalf("expected short queries to skip the store")
	}

	rr = serve(router, httptest.NewRequest(http.MethodGet, "/inline-search?q=air", nil))
	var result struct {
		Products   []map[string]any `json:"products"`
		Categories []map[string]any `json:"categories"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Products) != 2 {
		t.Fatalf("expected two english products, got %d", len(result.Products))
	}
	if store.limitFor(cms.KindProducts) != 5 || store.limitFor(cms.KindCategories) != 3 {
		t.Fatalf("unexpected inline caps: products %d categories %d", store.limitFor(cms.KindProducts), store.limitFor(cms.KindCategories))
	}
}

func postContact(router http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return serve(router, req)
}

func TestContactSuccess(t *testing.T) {
	sender := &stubContactSender{receipt: mail.ContactReceipt{NotificationID: "n-1", ConfirmationID: "c-1"}}
	router := newTestRouter(t, cms.NewMemoryStore(), sender)
	rr := postContact(router, `{"name":"Ada","email":"ada@example.com","subject":"Sizing","message":"Do the Pegasus run small?"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["success"] != true || body["message"] != "Emails sent successfully" {
		t.Fatalf("unexpected body %v", body)
	}
	if body["notificationId"] != "n-1" || body["confirmationId"] != "c-1" {
		t.Fatalf("expected receipt ids, got %v", body)
	}
	if sender.calls != 1 {
		t.Fatalf("expected one dispatch, got %d", sender.calls)
	}
}

func TestContactRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		message string
	}{
		{name: "empty body", body: "", message: "Invalid request body"},
		{name: "malformed json", body: `{"name":`, message: "Invalid request body"},
		{name: "missing fields", body: `{"name":"Ada","email":"ada@example.com"}`, message: mail.MessageFieldsRequired},
		{name: "blank fields", body: `{"name":"  ","email":"ada@example.com","subject":"s","message":"m"}`, message: mail.MessageFieldsRequired},
		{name: "bad email", body: `{"name":"Ada","email":"ada.example.com","subject":"s","message":"m"}`, message: mail.MessageInvalidEmail},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sender := &stubContactSender{}
			router := newTestRouter(t, cms.NewMemoryStore(), sender)
			rr := postContact(router, tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rr.Code)
			}
			body := decodeBody(t, rr)
			if body["success"] != false || body["error"] != tc.message {
				t.Fatalf("unexpected body %v", body)
			}
			if sender.calls != 0 {
				t.Fatalf("expected no dispatch, got %d", sender.calls)
			}
		})
	}
}

func TestContactRejectsOversizedBody(t *testing.T) {
	sender := &stubContactSender{}
	gatewayless := NewStorefrontHandlers(WithContactSender(sender), WithContactBodyLimit(32))
	router := NewRouter(WithStorefrontRoutes(gatewayless.Routes))
	rr := postContact(router, `{"name":"Ada","email":"ada@example.com","subject":"s","message":"`+strings.Repeat("x", 64)+`"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if sender.calls != 0 {
		t.Fatalf("expected no dispatch")
	}
}

func TestContactDispatchFailure(t *testing.T) {
	sender := &stubContactSender{err: errors.New("resend: 422 validation_error: domain not verified")}
	router := newTestRouter(t, cms.NewMemoryStore(), sender)
	rr := postContact(router, `{"name":"Ada","email":"ada@example.com","subject":"s","message":"m"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error"] != "Failed to send emails" {
		t.Fatalf("expected generic failure, got %v", body["error"])
	}
	if strings.Contains(rr.Body.String(), "domain not verified") {
		t.Fatalf("provider detail leaked: %s", rr.Body.String())
	}
}

func TestContactWithoutSender(t *testing.T) {
	router := newTestRouter(t, cms.NewMemoryStore(), nil)
	rr := postContact(router, `{"name":"Ada","email":"ada@example.com","subject":"s","message":"m"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error"] != "Internal server error" {
		t.Fatalf("unexpected error %v", body["error"])
	}
}

func TestGetLocale(t *testing.T) {
	router, _ := newMemoryRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/locale", nil)
	req.AddCookie(&http.Cookie{Name: "site-locale", Value: "es"})
	req.Header.Set("Accept-Language", "fr")
	rr := serve(router, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["locale"] != "es" || body["default"] != "en" {
		t.Fatalf("unexpected body %v", body)
	}
	if supported, _ := body["supported"].([]any); len(supported) != 4 {
		t.Fatalf("expected four supported locales, got %v", body["supported"])
	}
}

func TestSetLocaleFormRedirects(t *testing.T) {
	router, _ := newMemoryRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/locale", strings.NewReader("locale=fr"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", "http://example.com/products/air-max-90?color=red")
	rr := serve(router, req)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected status 303, got %d", rr.Code)
	}
	if got := rr.Header().Get("Location"); got != "/products/air-max-90?color=red" {
		t.Fatalf("unexpected redirect %q", got)
	}

	cookies := rr.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	cookie := cookies[0]
	if cookie.Name != "site-locale" || cookie.Value != "fr" {
		t.Fatalf("unexpected cookie %s=%s", cookie.Name, cookie.Value)
	}
	if cookie.Path != "/" || cookie.MaxAge != 31536000 || cookie.SameSite != http.SameSiteLaxMode || cookie.HttpOnly {
		t.Fatalf("unexpected cookie attributes %+v", cookie)
	}

	var trigger map[string]map[string]string
	if err := json.Unmarshal([]byte(rr.Header().Get("HX-Trigger")), &trigger); err != nil {
		t.Fatalf("decode HX-Trigger: %v", err)
	}
	if trigger["locale-changed"]["locale"] != "fr" || trigger["locale-changed"]["storageKey"] != "site-locale" {
		t.Fatalf("unexpected trigger %v", trigger)
	}
}

func TestSetLocaleIgnoresForeignReferer(t *testing.T) {
	router, _ := newMemoryRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/locale", strings.NewReader("locale=de"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", "https://evil.example.net/phish")
	rr := serve(router, req)
	if got := rr.Header().Get("Location"); got != "/" {
		t.Fatalf("expected redirect to /, got %q", got)
	}
}

func TestSetLocaleHTMX(t *testing.T) {
	router, _ := newMemoryRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/locale", strings.NewReader(`{"locale":"de"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HX-Request", "true")
	rr := serve(router, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if rr.Header().Get("HX-Refresh") != "true" {
		t.Fatalf("expected HX-Refresh header")
	}
	if body := decodeBody(t, rr); body["locale"] != "de" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestSetLocaleRejectsUnsupported(t *testing.T) {
	for _, value := range []string{"it", "EN", ""} {
		router, _ := newMemoryRouter(t)
		req := httptest.NewRequest(http.MethodPost, "/locale", strings.NewReader(url.Values{"locale": {value}}.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := serve(router, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%q: expected status 400, got %d", value, rr.Code)
		}
		if body := decodeBody(t, rr); body["error"] != "unsupported_locale" {
			t.Fatalf("%q: unexpected error %v", value, body["error"])
		}
		if len(rr.Result().Cookies()) != 0 {
			t.Fatalf("%q: expected no cookie", value)
		}
	}
}

func TestProductFallsBackToDefaultLocale(t *testing.T) {
	router, _ := newMemoryRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/products/air-max-90", nil)
	req.AddCookie(&http.Cookie{Name: "site-locale", Value: "es"})
	rr := serve(router, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["id"] != "p-airmax" || body["onSale"] != true {
		t.Fatalf("unexpected product %v", body)
	}
	if body["displayPrice"] != "130,00\u00a0$" || body["displaySalePrice"] != "110,00\u00a0$" {
		t.Fatalf("unexpected prices %v / %v", body["displayPrice"], body["displaySalePrice"])
	}
}

func TestProductNotFound(t *testing.T) {
	router, _ := newMemoryRouter(t)
	rr := serve(router, httptest.NewRequest(http.MethodGet, "/products/pegasus", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for a french-only product, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error"] != "not_found" {
		t.Fatalf("unexpected error %v", body["error"])
	}
}

func TestProductUpstreamFailure(t *testing.T) {
	store := &recordingStore{inner: cms.NewMemoryStore(), err: &cms.StoreError{Op: "find", Status: http.StatusUnauthorized}}
	router := newTestRouter(t, store, nil)
	rr := serve(router, httptest.NewRequest(http.MethodGet, "/products/air-max-90", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error"] != "internal_server_error" {
		t.Fatalf("unexpected error %v", body["error"])
	}
}

func TestCategoryPage(t *testing.T) {
	router, _ := newMemoryRouter(t)
	rr := serve(router, httptest.NewRequest(http.MethodGet, "/categories/running", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["name"] != "Running" {
		t.Fatalf("unexpected name %v", body["name"])
	}
	products, _ := body["products"].([]any)
	if len(products) != 1 {
		t.Fatalf("expected the english running product only, got %d", len(products))
	}

	rr = serve(router, httptest.NewRequest(http.MethodGet, "/categories/trail-running", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestArticleRendersMarkdown(t *testing.T) {
	router, _ := newMemoryRouter(t)
	rr := serve(router, httptest.NewRequest(http.MethodGet, "/articles/first-marathon", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	html, _ := body["contentHtml"].(string)
	if !strings.Contains(html, "<h2") || !strings.Contains(html, "<strong>easy</strong>") {
		t.Fatalf("expected rendered markdown, got %q", html)
	}
	if body["displayDate"] != "Mar 1, 2024" {
		t.Fatalf("unexpected date %v", body["displayDate"])
	}
}

func TestArticleListOmitsBody(t *testing.T) {
	router, _ := newMemoryRouter(t)
	rr := serve(router, httptest.NewRequest(http.MethodGet, "/articles?limit=2", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "Week one") {
		t.Fatalf("expected list view without article content")
	}
}

func TestPageFallsBack(t *testing.T) {
	router, _ := newMemoryRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/pages/about", nil)
	req.AddCookie(&http.Cookie{Name: "site-locale", Value: "de"})
	rr := serve(router, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if html, _ := body["contentHtml"].(string); !strings.Contains(html, "<em>gear</em>") {
		t.Fatalf("unexpected content %q", html)
	}
}

func TestJordanListing(t *testing.T) {
	router, _ := newMemoryRouter(t)
	rr := serve(router, httptest.NewRequest(http.MethodGet, "/jordan", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	products, _ := decodeBody(t, rr)["products"].([]any)
	if len(products) != 1 {
		t.Fatalf("expected one jordan product, got %d", len(products))
	}
}

func TestBackTargetPrefersHTMXCurrentURL(t *testing.T) {
	router, _ := newMemoryRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/locale", strings.NewReader("locale=es"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Boosted", "true")
	req.Header.Set("HX-Current-URL", "http://example.com/categories/running")
	req.Header.Set("Referer", "http://example.com/")
	rr := serve(router, req)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected status 303, got %d", rr.Code)
	}
	if got := rr.Header().Get("Location"); got != "/categories/running" {
		t.Fatalf("unexpected redirect %q", got)
	}
}
