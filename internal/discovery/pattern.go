// Package discovery finds the field that holds province names in tables
// whose layout does not use one of the configured region field names.
package discovery

import (
	"regexp"
	"strings"
)

// RegionNamePattern matches field names commonly used for the province:
// IL, ILADI, IL_ADI, SEHIR, SEHIR_ADI, PROVINCE, PROV_NAME and the like.
var RegionNamePattern = regexp.MustCompile(`(?i)^(IL|SEHIR|PROV(INCE)?)(_?(ADI|AD|NAME|NM))?$`)

// LooksLikeRegionField reports whether a field name suggests province names.
func LooksLikeRegionField(name string) bool {
	return RegionNamePattern.MatchString(strings.TrimSpace(name))
}
