package config

// SiteMetadata is the fixed descriptive text merged into output global
// attributes.
type SiteMetadata struct {
	Institution string `json:"institution,omitempty"`
	Instrument  string `json:"instrument,omitempty"`
	Site        string `json:"site,omitempty"`
	Contact     string `json:"contact,omitempty"`
	References  string `json:"references,omitempty"`
	Comments    string `json:"comments,omitempty"`
}

// Attributes returns the non-empty fields keyed by their NetCDF attribute
// names.
func (s SiteMetadata) Attributes() map[string]string {
	out := map[string]string{}
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set("institution", s.Institution)
	set("instrument_name", s.Instrument)
	set("site_name", s.Site)
	set("contact_person", s.Contact)
	set("references", s.References)
	set("comments", s.Comments)
	return out
}
