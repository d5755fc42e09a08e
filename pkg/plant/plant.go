// Package plant turns a plant photo into a structured identification
// record using a multimodal model.
//
// The model is asked for a fixed "Label: value" layout, but its output is
// not contractually structured. ParseResponse therefore extracts fields by
// keyword and fills anything it cannot find with a per-field sentinel
// ("No family available") rather than failing.
package plant

// Field labels, as matched (lowercase) against model output lines.
const (
	LabelName           = "name"
	LabelScientificName = "scientific name"
	LabelFamily         = "family"
	LabelDescription    = "description"
	LabelCareTips       = "care tips"
)

// Prompt is the fixed instruction sent with every image.
const Prompt = `Identify this plant and provide the following information: name, scientific name, family, a brief description, and care tips.
Reply with exactly these five lines and nothing else, without markdown:
Name: <common name>
Scientific Name: <binomial name>
Family: <botanical family>
Description: <one or two sentences>
Care Tips: <light, watering and soil advice on a single line>`

// Record is the result of one successful identification. Fields the model
// did not provide hold the Unavailable sentinel for their label.
type Record struct {
	Name           string `json:"name"`
	ScientificName string `json:"scientificName"`
	Family         string `json:"family"`
	Description    string `json:"description"`
	CareTips       string `json:"careTips"`

	// Model is the model that produced the reply.
	Model string `json:"model,omitempty"`

	// Raw is the unparsed reply.
	Raw string `json:"raw,omitempty"`
}

// Unavailable returns the sentinel for a field that could not be extracted.
func Unavailable(label string) string {
	return "No " + label + " available"
}

// Complete reports whether every field was extracted.
func (r Record) Complete() bool {
	return r.Name != Unavailable(LabelName) &&
		r.ScientificName != Unavailable(LabelScientificName) &&
		r.Family != Unavailable(LabelFamily) &&
		r.Description != Unavailable(LabelDescription) &&
		r.CareTips != Unavailable(LabelCareTips)
}
