// Package fixture holds sample HL7 v2 messages shared by package tests.
package fixture

import "strings"

// Segment lines of a complete ELR ORU^R01 message that passes every default rule.
const (
	MSH = `MSH|^~\&|XL2HL7^1.10.100.1.111111.1.101^ISO|Test Lab^99999^CLIA|CalRedie|CDPH|20241030100306||ORU^R01^ORU_R01|103|P|2.5.1|||NE|NE|||||PHLabReport-NoAck^^^ISO`
	SFT = `SFT|XL2HL7 Conversion|1.0|CalREDIE XC|1.0||20240105`
	PID = `PID|1||8675309||Test^Rick^A||20200202|M||2033-9|1234 Main Ln.^^Sacramento^CA^95814||^PRN^PH^^1^916^1234567|||||||||H|`
	ORC = `ORC|RE|Gon1001^Test Lab^99999^CLIA|Doctor|||||||||NPI123456^Doctor^Doctor|||||||||Test Lab^^^^^^^^^99999|123 That Street St.^^Sacramento^CA^95814^^B|^WPN^PH^^^337^3373377|123 That Street St.^^Sacramento^CA^95814|||||||`
	OBR = `OBR|1|Gon1001^Test Lab^99999^CLIA|Gon1001|21416-3N. gonorrhoeae DNA NAA+probe Ql (U)|||24y0229092624||||||Not Pregnant|||NPI123456^Doctor^Doctor|^WPN^PH^^1^337^3373377|||||20241030100306|||F|||||||||||||||||||||||||`
	OBX = `OBX|1|CE|21416-3^N. gonorrhoeae DNA NAA+probe Ql (U)||260373001^Detected||NEG|A^Abnormal|||F|||20240228101533|||^Roche cobas 8800 System||20240229092624||||ARUP^^^^^^^^^46D0523979|2023 Floyd Ave^Salt Lake City^UT^84108||||||`
	SPM = `SPM|1|^8675309|| ^Body fluid sample|||||||||||||20240228101533|20240228110000|||||||||||`
)

// ValidORU is the complete message built from the segment lines above.
var ValidORU = Join(MSH, SFT, PID, ORC, OBR, OBX, SPM)

// Join builds a message from segment lines separated by newlines.
func Join(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

// Replace returns lines with every segment of type typ replaced by repl.
func Replace(lines []string, typ, repl string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		if strings.HasPrefix(line, typ+"|") {
			out[i] = repl
			continue
		}
		out[i] = line
	}
	return out
}

// Lines returns the segment lines of ValidORU.
func Lines() []string {
	return []string{MSH, SFT, PID, ORC, OBR, OBX, SPM}
}
