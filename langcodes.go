package mobi

import "strings"

// lcid is a Windows language identifier split into its primary and
// sublanguage parts.
type lcid struct {
	main byte
	sub  byte
}

// languageIDs maps ISO 639-1 codes to primary language ids and, per region
// subtag, the sublanguage id. The "" region is the language default.
var languageIDs = map[string]map[string]lcid{
	"af": {"": {54, 0}},
	"ar": {"": {1, 0}, "SA": {1, 1}, "IQ": {1, 2}, "EG": {1, 3}, "LY": {1, 4}, "DZ": {1, 5}, "MA": {1, 6},
		"TN": {1, 7}, "OM": {1, 8}, "YE": {1, 9}, "SY": {1, 10}, "JO": {1, 11}, "LB": {1, 12}, "KW": {1, 13},
		"AE": {1, 14}, "BH": {1, 15}, "QA": {1, 16}},
	"as": {"": {77, 0}},
	"az": {"": {44, 0}},
	"be": {"": {35, 0}},
	"bg": {"": {2, 0}},
	"bn": {"": {69, 0}},
	"ca": {"": {3, 0}},
	"cs": {"": {5, 0}},
	"da": {"": {6, 0}},
	"de": {"": {7, 0}, "DE": {7, 1}, "CH": {7, 2}, "AT": {7, 3}, "LU": {7, 4}, "LI": {7, 5}},
	"el": {"": {8, 0}},
	"en": {"": {9, 0}, "US": {9, 1}, "GB": {9, 2}, "AU": {9, 3}, "CA": {9, 4}, "NZ": {9, 5}, "IE": {9, 6},
		"ZA": {9, 7}, "JM": {9, 8}, "BZ": {9, 10}, "TT": {9, 11}, "ZW": {9, 12}, "PH": {9, 13}},
	"es": {"": {10, 0}, "ES": {10, 1}, "MX": {10, 2}, "GT": {10, 4}, "CR": {10, 5}, "PA": {10, 6}, "DO": {10, 7},
		"VE": {10, 8}, "CO": {10, 9}, "PE": {10, 10}, "AR": {10, 11}, "EC": {10, 12}, "CL": {10, 13},
		"UY": {10, 14}, "PY": {10, 15}, "BO": {10, 16}, "SV": {10, 17}, "HN": {10, 18}, "NI": {10, 19},
		"PR": {10, 20}},
	"et": {"": {37, 0}},
	"eu": {"": {45, 0}},
	"fa": {"": {41, 0}},
	"fi": {"": {11, 0}},
	"fo": {"": {56, 0}},
	"fr": {"": {12, 0}, "FR": {12, 1}, "BE": {12, 2}, "CA": {12, 3}, "CH": {12, 4}, "LU": {12, 5}, "MC": {12, 6}},
	"gu": {"": {71, 0}},
	"he": {"": {13, 0}},
	"hi": {"": {57, 0}},
	"hr": {"": {26, 0}},
	"hu": {"": {14, 0}},
	"hy": {"": {43, 0}},
	"id": {"": {33, 0}},
	"is": {"": {15, 0}},
	"it": {"": {16, 0}, "IT": {16, 1}, "CH": {16, 2}},
	"ja": {"": {17, 0}},
	"ka": {"": {55, 0}},
	"kk": {"": {63, 0}},
	"kn": {"": {75, 0}},
	"ko": {"": {18, 0}},
	"lt": {"": {39, 0}},
	"lv": {"": {38, 0}},
	"mk": {"": {47, 0}},
	"ml": {"": {76, 0}},
	"mr": {"": {78, 0}},
	"ms": {"": {62, 0}},
	"mt": {"": {58, 0}},
	"nb": {"": {20, 1}},
	"ne": {"": {97, 0}},
	"nl": {"": {19, 0}, "NL": {19, 1}, "BE": {19, 2}},
	"nn": {"": {20, 2}},
	"no": {"": {20, 0}},
	"or": {"": {72, 0}},
	"pa": {"": {70, 0}},
	"pl": {"": {21, 0}},
	"pt": {"": {22, 0}, "BR": {22, 1}, "PT": {22, 2}},
	"rm": {"": {23, 0}},
	"ro": {"": {24, 0}},
	"ru": {"": {25, 0}},
	"sa": {"": {79, 0}},
	"sk": {"": {27, 0}},
	"sl": {"": {36, 0}},
	"sq": {"": {28, 0}},
	"sr": {"": {26, 0}},
	"sv": {"": {29, 0}, "SE": {29, 1}, "FI": {29, 2}},
	"sw": {"": {65, 0}},
	"ta": {"": {73, 0}},
	"te": {"": {74, 0}},
	"th": {"": {30, 0}},
	"tn": {"": {50, 0}},
	"tr": {"": {31, 0}},
	"ts": {"": {49, 0}},
	"tt": {"": {68, 0}},
	"uk": {"": {34, 0}},
	"ur": {"": {32, 0}},
	"uz": {"": {67, 0}},
	"vi": {"": {42, 0}},
	"xh": {"": {52, 0}},
	"zh": {"": {4, 0}, "TW": {4, 1}, "CN": {4, 2}, "HK": {4, 3}, "SG": {4, 4}, "MO": {4, 5}},
	"zu": {"": {53, 0}},
}

// Bibliographic and terminology ISO 639-2 codes seen in metadata.
var iso639Alpha3 = map[string]string{
	"eng": "en", "fra": "fr", "fre": "fr", "deu": "de", "ger": "de", "spa": "es",
	"ita": "it", "jpn": "ja", "zho": "zh", "chi": "zh", "nld": "nl", "dut": "nl",
	"por": "pt", "rus": "ru", "swe": "sv", "dan": "da", "fin": "fi", "nor": "no",
	"pol": "pl", "ces": "cs", "cze": "cs", "ell": "el", "gre": "el", "heb": "he",
	"hun": "hu", "kor": "ko", "tur": "tr", "ukr": "uk", "ara": "ar", "hin": "hi",
}

// languageCode returns the four header bytes for an IANA language tag:
// two zero bytes, the sublanguage id and the primary language id. Unknown
// tags yield zeros.
func languageCode(tag string) [4]byte {
	subtags := strings.FieldsFunc(tag, func(r rune) bool { return r == '-' || r == '_' })
	var regions map[string]lcid
	for len(subtags) > 0 {
		lang := strings.ToLower(subtags[0])
		subtags = subtags[1:]
		if alias, ok := iso639Alpha3[lang]; ok {
			lang = alias
		}
		if r, ok := languageIDs[lang]; ok {
			regions = r
			break
		}
	}
	if regions == nil {
		return [4]byte{}
	}
	id := regions[""]
	for _, st := range subtags {
		if r, ok := regions[strings.ToUpper(st)]; ok {
			id = r
			break
		}
	}
	return [4]byte{0, 0, id.sub, id.main}
}
