package builder

import (
	"fmt"
	"strings"
	"time"
)

// stateCodes maps UF initials to the IBGE cUF code.
var stateCodes = map[string]string{
	"AC": "12", "AL": "27", "AP": "16", "AM": "13", "BA": "29", "CE": "23",
	"DF": "53", "ES": "32", "GO": "52", "MA": "21", "MT": "51", "MS": "50",
	"MG": "31", "PA": "15", "PB": "25", "PR": "41", "PE": "26", "PI": "22",
	"RJ": "33", "RN": "24", "RS": "43", "RO": "11", "RR": "14", "SC": "42",
	"SP": "35", "SE": "28", "TO": "17",
}

// StateCode resolves the cUF for a UF, defaulting to SP.
func StateCode(uf string) string {
	if code, ok := stateCodes[strings.ToUpper(uf)]; ok {
		return code
	}
	return "35"
}

// ComposeAccessKey builds the 44 digit access key: cUF + AAMM + CNPJ +
// model + series + number + emission type + cNF + check digit.
func ComposeAccessKey(uf string, emission time.Time, cnpj, model string, series int, number int64, emissionType, cnf string) string {
	key := StateCode(uf) +
		emission.Format("0601") +
		leftPad(onlyDigits(cnpj), 14) +
		model +
		fmt.Sprintf("%03d", series) +
		fmt.Sprintf("%09d", number) +
		emissionType +
		leftPad(cnf, 8)
	return key + fmt.Sprintf("%d", CheckDigit(key))
}

// CheckDigit computes the module 11 verifier over the 43 digit prefix.
// Weights cycle 2..9 from the rightmost digit.
func CheckDigit(key string) int {
	sum, weight := 0, 2
	for i := len(key) - 1; i >= 0; i-- {
		sum += int(key[i]-'0') * weight
		if weight < 9 {
			weight++
		} else {
			weight = 2
		}
	}
	r := sum % 11
	if r < 2 {
		return 0
	}
	return 11 - r
}

func leftPad(s string, width int) string {
	for len(s) < width {
		s = "0" + s
	}
	return s
}

func onlyDigits(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return string(out)
}
