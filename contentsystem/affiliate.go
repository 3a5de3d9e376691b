package contentsystem

import "net/url"

// GogToAffiliate rewrites a www.gog.com URL into its af.gog.com affiliate
// form, appending the channel id as an "as" query parameter. Ported from
// original_source/src/utils.rs::gog_to_affiliate (SPEC_FULL.md §4.11).
func GogToAffiliate(gogURL, channelID string) (string, error) {
	u, err := url.Parse(gogURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("as", channelID)
	u.RawQuery = q.Encode()
	u.Host = "af.gog.com"
	return u.String(), nil
}
