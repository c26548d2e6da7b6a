package relval

import (
	"github.com/jacentio/relval/controller"
	"github.com/jacentio/relval/model"
)

// sequenceRule validates one cmsDriver step of a sequences list.
const sequenceRule = `{
	"type": "object",
	"required": ["step"],
	"properties": {
		"step": {"type": "string", "minLength": 1},
		"conditions": {"type": "string"},
		"datatier": {"type": "array", "items": {"type": "string"}},
		"nThreads": {"type": "number", "minimum": 1}
	}
}`

var validSequences = model.Each(model.Rule(sequenceRule))

// SubcampaignSchema declares subcampaign documents.
var SubcampaignSchema = model.NewSchema(CollectionSubcampaigns, "prepid",
	model.Field{Name: "prepid", Kind: model.String, Default: "", Validate: model.Identifier()},
	model.Field{Name: "campaign", Kind: model.String, Default: "", Validate: model.Identifier()},
	model.Field{Name: "cmssw_release", Kind: model.String, Default: "", Validate: model.Pattern(releasePattern)},
	model.Field{Name: "energy", Kind: model.Number, Default: 0.0, Validate: model.NonNegative()},
	model.Field{Name: "memory", Kind: model.Number, Default: 2000.0, Validate: model.All(model.NonNegative(), model.Integer())},
	model.Field{Name: "sequences", Kind: model.List, Default: []any{}, Validate: validSequences},
	model.Field{Name: "notes", Kind: model.String, Default: ""},
	model.Field{Name: model.HistoryField, Kind: model.List, Default: []any{}},
)

// Subcampaigns manages subcampaign documents. Their campaign must exist and
// cannot change; a subcampaign used by tickets or requests cannot be deleted.
type Subcampaigns struct {
	*controller.Controller
}

type subcampaignHooks struct {
	entityHooks
}

func (subcampaignHooks) EditingInfo(*model.Document) *controller.EditInfo {
	return locked("prepid", model.HistoryField, "campaign")
}
