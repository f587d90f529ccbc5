package geo

// countryInfo maps ISO 3166-1 alpha-2 codes to display name and
// continent. Not exhaustive; unlisted codes keep the raw code as name.
var countryInfo = map[string][2]string{
	"US": {"United States", "North America"},
	"CA": {"Canada", "North America"},
	"MX": {"Mexico", "North America"},
	"BR": {"Brazil", "South America"},
	"AR": {"Argentina", "South America"},
	"CO": {"Colombia", "South America"},
	"CL": {"Chile", "South America"},
	"GB": {"United Kingdom", "Europe"},
	"DE": {"Germany", "Europe"},
	"FR": {"France", "Europe"},
	"ES": {"Spain", "Europe"},
	"IT": {"Italy", "Europe"},
	"NL": {"Netherlands", "Europe"},
	"SE": {"Sweden", "Europe"},
	"NO": {"Norway", "Europe"},
	"DK": {"Denmark", "Europe"},
	"FI": {"Finland", "Europe"},
	"PL": {"Poland", "Europe"},
	"PT": {"Portugal", "Europe"},
	"IE": {"Ireland", "Europe"},
	"CH": {"Switzerland", "Europe"},
	"AT": {"Austria", "Europe"},
	"BE": {"Belgium", "Europe"},
	"CZ": {"Czechia", "Europe"},
	"RO": {"Romania", "Europe"},
	"UA": {"Ukraine", "Europe"},
	"RU": {"Russia", "Europe"},
	"TR": {"Turkey", "Asia"},
	"CN": {"China", "Asia"},
	"JP": {"Japan", "Asia"},
	"KR": {"South Korea", "Asia"},
	"IN": {"India", "Asia"},
	"ID": {"Indonesia", "Asia"},
	"TH": {"Thailand", "Asia"},
	"VN": {"Vietnam", "Asia"},
	"PH": {"Philippines", "Asia"},
	"MY": {"Malaysia", "Asia"},
	"SG": {"Singapore", "Asia"},
	"HK": {"Hong Kong", "Asia"},
	"TW": {"Taiwan", "Asia"},
	"IL": {"Israel", "Asia"},
	"AE": {"United Arab Emirates", "Asia"},
	"SA": {"Saudi Arabia", "Asia"},
	"PK": {"Pakistan", "Asia"},
	"BD": {"Bangladesh", "Asia"},
	"AU": {"Australia", "Oceania"},
	"NZ": {"New Zealand", "Oceania"},
	"ZA": {"South Africa", "Africa"},
	"NG": {"Nigeria", "Africa"},
	"EG": {"Egypt", "Africa"},
	"KE": {"Kenya", "Africa"},
	"MA": {"Morocco", "Africa"},
}

func countryName(code string) (name, continent string) {
	if info, ok := countryInfo[code]; ok {
		return info[0], info[1]
	}
	if code == "" || code == "XX" {
		return "", ""
	}
	return code, ""
}
