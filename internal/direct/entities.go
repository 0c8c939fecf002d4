package direct

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// EntityRecord is one campaign, ad group or ad as returned by the API.
// Numbers are kept as json.Number so that large IDs survive unchanged.
type EntityRecord map[string]any

// EntityQuery selects entities. CampaignIDs is optional for campaigns and
// required for ad groups and ads. Empty FieldNames selects a default set.
type EntityQuery struct {
	CampaignIDs []int64
	FieldNames  []string
}

// resource describes one listing endpoint.
type resource struct {
	path             string
	resultKey        string
	idsCriteria      string
	requireCampaigns bool
	defaultFields    []string
}

var (
	campaignsResource = resource{
		path:        "campaigns",
		resultKey:   "Campaigns",
		idsCriteria: "Ids",
		defaultFields: []string{
			"Id", "Name", "State", "Type", "StartDate", "EndDate",
		},
	}
	adGroupsResource = resource{
		path:             "adgroups",
		resultKey:        "AdGroups",
		idsCriteria:      "CampaignIds",
		requireCampaigns: true,
		defaultFields: []string{
			"Id", "Name", "CampaignId", "Status", "Type", "Subtype",
		},
	}
	adsResource = resource{
		path:             "ads",
		resultKey:        "Ads",
		idsCriteria:      "CampaignIds",
		requireCampaigns: true,
		defaultFields: []string{
			"Id", "AdGroupId", "CampaignId", "AdCategories", "State", "Status",
			"Type", "Subtype", "StatusClarification",
		},
	}
)

// EntityFetcher lists account entities with one request per call.
type EntityFetcher struct {
	transport Transport
	baseURL   string
	headers   map[string]string
	observer  Observer
	logger    zerolog.Logger
}

func (f *EntityFetcher) GetCampaigns(ctx context.Context, q EntityQuery) ([]EntityRecord, error) {
	return f.get(ctx, campaignsResource, q)
}

func (f *EntityFetcher) GetAdGroups(ctx context.Context, q EntityQuery) ([]EntityRecord, error) {
	return f.get(ctx, adGroupsResource, q)
}

func (f *EntityFetcher) GetAds(ctx context.Context, q EntityQuery) ([]EntityRecord, error) {
	return f.get(ctx, adsResource, q)
}

// AccountTree is every campaign matched by a query together with its ad
// groups and ads.
type AccountTree struct {
	Campaigns []EntityRecord
	AdGroups  []EntityRecord
	Ads       []EntityRecord
}

// GetAccountTree lists campaigns, then fetches the ad groups and ads of those
// campaigns concurrently. q.FieldNames applies to campaigns only.
func (f *EntityFetcher) GetAccountTree(ctx context.Context, q EntityQuery) (*AccountTree, error) {
	if len(q.FieldNames) > 0 && !slices.Contains(q.FieldNames, "Id") {
		q.FieldNames = append(slices.Clone(q.FieldNames), "Id")
	}
	campaigns, err := f.GetCampaigns(ctx, q)
	if err != nil {
		return nil, err
	}

	tree := &AccountTree{Campaigns: campaigns}
	ids, err := recordIDs(campaigns)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return tree, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		adGroups, err := f.GetAdGroups(ctx, EntityQuery{CampaignIDs: ids})
		tree.AdGroups = adGroups
		return err
	})
	g.Go(func() error {
		ads, err := f.GetAds(ctx, EntityQuery{CampaignIDs: ids})
		tree.Ads = ads
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return tree, nil
}

type entityRequest struct {
	Method string       `json:"method"`
	Params entityParams `json:"params"`
}

type entityParams struct {
	SelectionCriteria map[string][]int64 `json:"SelectionCriteria"`
	FieldNames        []string           `json:"FieldNames"`
}

// entityResponse is the success envelope: {"result": {"Campaigns": [...]}}.
type entityResponse struct {
	Result map[string]json.RawMessage `json:"result"`
}

func (f *EntityFetcher) get(ctx context.Context, res resource, q EntityQuery) ([]EntityRecord, error) {
	records, err := f.fetch(ctx, res, q)
	f.observer.ObserveEntities(res.path, len(records), err)
	if err != nil {
		f.logger.Warn().Err(err).Str("resource", res.path).Str("kind", ErrorKind(err)).Msg("listing failed")
		return nil, err
	}
	f.logger.Debug().Str("resource", res.path).Int("count", len(records)).Msg("listed entities")
	return records, nil
}

func (f *EntityFetcher) fetch(ctx context.Context, res resource, q EntityQuery) ([]EntityRecord, error) {
	ids := uniqueIDs(q.CampaignIDs)
	if res.requireCampaigns && len(ids) == 0 {
		return nil, fmt.Errorf("%w: listing %s requires campaign ids", ErrValidation, res.path)
	}

	fields := q.FieldNames
	if len(fields) == 0 {
		fields = res.defaultFields
	}
	criteria := map[string][]int64{}
	if len(ids) > 0 {
		criteria[res.idsCriteria] = ids
	}

	body, err := marshalJSON(entityRequest{
		Method: "get",
		Params: entityParams{
			SelectionCriteria: criteria,
			FieldNames:        fields,
		},
	})
	if err != nil {
		return nil, err
	}

	resp, err := f.transport.Send(ctx, &Request{
		URL:     f.baseURL + res.path,
		Headers: f.headers,
		Body:    body,
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", res.path, err)
	}

	c := Classify(resp)
	switch c.Outcome {
	case OutcomeReady:
		return decodeEntities(res, c)
	case OutcomeBadRequest:
		return nil, fmt.Errorf("get %s: %w", res.path, c.badRequest())
	case OutcomeUnavailable:
		return nil, fmt.Errorf("get %s: %w (status: %d)", res.path, ErrServerUnavailable, c.StatusCode)
	case OutcomeQueued, OutcomeStillProcessing:
		return nil, &ProtocolViolationError{
			StatusCode: c.StatusCode,
			Reason:     fmt.Sprintf("%s endpoint answered %s", res.path, c.Outcome),
		}
	default:
		return nil, c.protocolViolation()
	}
}

// decodeEntities validates the success envelope. The API omits the list key
// when nothing matched, so only a missing "result" is a violation.
func decodeEntities(res resource, c Classification) ([]EntityRecord, error) {
	violation := func(reason string) error {
		return &ProtocolViolationError{StatusCode: c.StatusCode, Reason: reason}
	}

	var envelope entityResponse
	if err := decodeJSON(c.Body, &envelope); err != nil {
		return nil, violation(fmt.Sprintf("%s: malformed response body: %v", res.path, err))
	}
	if envelope.Result == nil {
		return nil, violation(fmt.Sprintf("%s: response has no result", res.path))
	}

	raw, ok := envelope.Result[res.resultKey]
	if !ok {
		return []EntityRecord{}, nil
	}

	var records []EntityRecord
	if err := decodeJSON(raw, &records); err != nil {
		return nil, violation(fmt.Sprintf("%s: result.%s is not a list of objects: %v", res.path, res.resultKey, err))
	}
	for i, r := range records {
		if r == nil {
			return nil, violation(fmt.Sprintf("%s: result.%s[%d] is null", res.path, res.resultKey, i))
		}
	}
	if records == nil {
		records = []EntityRecord{}
	}
	return records, nil
}

func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// uniqueIDs returns ids sorted and without duplicates.
func uniqueIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

func recordIDs(records []EntityRecord) ([]int64, error) {
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		n, ok := r["Id"].(json.Number)
		if !ok {
			return nil, &ProtocolViolationError{Reason: fmt.Sprintf("campaign without numeric Id: %v", r["Id"])}
		}
		id, err := n.Int64()
		if err != nil {
			return nil, &ProtocolViolationError{Reason: fmt.Sprintf("campaign Id %s: %v", n, err)}
		}
		ids = append(ids, id)
	}
	return ids, nil
}
