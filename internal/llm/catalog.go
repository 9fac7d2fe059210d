package llm

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sourcegraph/conc"
)

// Price is a per-token price. Catalog servers send it as a number or as a
// decimal string.
type Price float64

func (p *Price) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*p = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return errors.Wrapf(err, "invalid price %q", s)
	}
	*p = Price(f)
	return nil
}

type Pricing struct {
	Prompt     Price `json:"prompt"`
	Completion Price `json:"completion"`
}

// CatalogModel is one remote model offered by the catalog endpoint.
type CatalogModel struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Pricing  *Pricing `json:"pricing,omitempty"`
	Frontier bool     `json:"frontier"`
}

// Paid reports whether the model charges for prompt or completion tokens.
func (m CatalogModel) Paid() bool {
	return m.Pricing != nil && (m.Pricing.Prompt > 0 || m.Pricing.Completion > 0)
}

// Catalog is the filtered, sorted list of selectable models.
type Catalog struct {
	Models  []CatalogModel `json:"models"`
	Default string         `json:"default"`
}

// Contains reports whether id is selectable.
func (c *Catalog) Contains(id string) bool {
	if c == nil {
		return false
	}
	for _, m := range c.Models {
		if m.ID == id {
			return true
		}
	}
	return false
}

// CatalogOptions configures the catalog endpoints and the default models.
type CatalogOptions struct {
	BaseURL                string
	ModelsEndpoint         string
	FrontierModelsEndpoint string
	DefaultFreeModel       string
	DefaultPaidModel       string
	HTTPClient             *http.Client
}

// CatalogClient fetches the remote model catalog.
type CatalogClient struct {
	opts   CatalogOptions
	client *http.Client
}

func NewCatalogClient(opts CatalogOptions) *CatalogClient {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &CatalogClient{opts: opts, client: client}
}

// Fetch loads the catalog. Paid models are hidden unless frontierAccess is
// set. A failing frontier endpoint is logged and ignored.
func (c *CatalogClient) Fetch(ctx context.Context, frontierAccess bool) (*Catalog, error) {
	var (
		models      []CatalogModel
		modelsErr   error
		frontierIDs []string
	)

	wg := conc.NewWaitGroup()
	wg.Go(func() {
		models, modelsErr = c.fetchModels(ctx)
	})
	if c.opts.FrontierModelsEndpoint != "" {
		wg.Go(func() {
			ids, err := c.fetchFrontier(ctx)
			if err != nil {
				slog.WarnContext(ctx, "Failed to fetch frontier models", "error", err)
				return
			}
			frontierIDs = ids
		})
	}
	wg.Wait()

	if modelsErr != nil {
		return nil, modelsErr
	}
	return buildCatalog(models, frontierIDs, frontierAccess, c.opts.DefaultFreeModel, c.opts.DefaultPaidModel), nil
}

func buildCatalog(models []CatalogModel, frontierIDs []string, frontierAccess bool, defaultFree, defaultPaid string) *Catalog {
	frontier := make(map[string]bool, len(frontierIDs))
	for _, id := range frontierIDs {
		frontier[id] = true
	}

	sort.SliceStable(models, func(i, j int) bool {
		return strings.ToLower(models[i].Name) < strings.ToLower(models[j].Name)
	})

	cat := &Catalog{Models: []CatalogModel{}}
	for _, m := range models {
		if !frontierAccess && m.Paid() {
			continue
		}
		m.Frontier = frontier[m.ID]
		cat.Models = append(cat.Models, m)
	}

	switch {
	case frontierAccess && cat.Contains(defaultPaid):
		cat.Default = defaultPaid
	case !frontierAccess && defaultFree != "" && cat.Contains(defaultFree):
		cat.Default = defaultFree
	case len(cat.Models) > 0:
		cat.Default = cat.Models[0].ID
	}
	return cat
}

func (c *CatalogClient) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, "could not create request")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxFrameSize))
		return &StatusError{Code: resp.StatusCode, Message: statusMessage(raw)}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return errors.Wrapf(err, "could not decode %s", path)
	}
	return nil
}

func (c *CatalogClient) fetchModels(ctx context.Context) ([]CatalogModel, error) {
	var body struct {
		Data []CatalogModel `json:"data"`
	}
	if err := c.get(ctx, c.opts.ModelsEndpoint, &body); err != nil {
		return nil, errors.Wrap(err, "failed to fetch models")
	}
	return body.Data, nil
}

func (c *CatalogClient) fetchFrontier(ctx context.Context) ([]string, error) {
	var body struct {
		FrontierModels []string `json:"frontier_models"`
	}
	if err := c.get(ctx, c.opts.FrontierModelsEndpoint, &body); err != nil {
		return nil, err
	}
	return body.FrontierModels, nil
}
