package relval

import (
	"regexp"

	"github.com/jacentio/relval/controller"
	"github.com/jacentio/relval/model"
)

// Collection names.
const (
	CollectionCampaigns    = "campaigns"
	CollectionSubcampaigns = "subcampaigns"
	CollectionTickets      = "tickets"
	CollectionRequests     = "requests"
)

var releasePattern = regexp.MustCompile(`^(CMSSW_[0-9]+_[0-9]+_[0-9]+[A-Za-z0-9_]*)?$`)

// CampaignSchema declares campaign documents.
var CampaignSchema = model.NewSchema(CollectionCampaigns, "prepid",
	model.Field{Name: "prepid", Kind: model.String, Default: "", Validate: model.Identifier()},
	model.Field{Name: "cmssw_release", Kind: model.String, Default: "", Validate: model.Pattern(releasePattern)},
	model.Field{Name: "energy", Kind: model.Number, Default: 0.0, Validate: model.NonNegative()},
	model.Field{Name: "notes", Kind: model.String, Default: ""},
	model.Field{Name: model.HistoryField, Kind: model.List, Default: []any{}},
)

// Campaigns manages campaign documents. A campaign with subcampaigns cannot
// be deleted.
type Campaigns struct {
	*controller.Controller
}

type campaignHooks struct {
	entityHooks
}
