package builder

import (
	"github.com/beevik/etree"
	invoicedomain "github.com/notazul/notazul/internal/invoice/domain"
)

func addText(parent *etree.Element, tag, value string) *etree.Element {
	el := parent.CreateElement(tag)
	el.SetText(value)
	return el
}

// buildICMS appends the ICMS group for the item. Simples Nacional items
// carry a CSOSN and use the ICMSSN* groups; everything else falls back
// to the CST groups.
func buildICMS(imposto *etree.Element, item *invoicedomain.InvoiceItem) {
	icms := imposto.CreateElement("ICMS")

	if item.CSOSN != "" {
		switch item.CSOSN {
		case "102", "300", "400", "500":
			group := icms.CreateElement("ICMSSN102")
			addText(group, "orig", item.Origin)
			addText(group, "CSOSN", item.CSOSN)
		case "101":
			group := icms.CreateElement("ICMSSN101")
			addText(group, "orig", item.Origin)
			addText(group, "CSOSN", "101")
			addText(group, "pCredSN", rate(item.SNCreditRate))
			addText(group, "vCredICMSSN", money(item.SNCreditValue))
		case "900":
			group := icms.CreateElement("ICMSSN900")
			addText(group, "orig", item.Origin)
			addText(group, "CSOSN", "900")
			addText(group, "modBC", "3")
			addText(group, "vBC", money(item.ICMSBasis))
			addText(group, "pICMS", rate(item.ICMSRate))
			addText(group, "vICMS", money(item.ICMSValue))
			addText(group, "pCredSN", rate(item.SNCreditRate))
			addText(group, "vCredICMSSN", money(item.SNCreditValue))
		default:
			group := icms.CreateElement("ICMSSN500")
			addText(group, "orig", item.Origin)
			addText(group, "CSOSN", item.CSOSN)
		}
		return
	}

	cst := item.CST
	if cst == "" {
		cst = "40"
	}
	switch cst {
	case "00":
		group := icms.CreateElement("ICMS00")
		addText(group, "orig", item.Origin)
		addText(group, "CST", "00")
		addText(group, "modBC", "3")
		addText(group, "vBC", money(item.ICMSBasis))
		addText(group, "pICMS", rate(item.ICMSRate))
		addText(group, "vICMS", money(item.ICMSValue))
	case "10":
		group := icms.CreateElement("ICMS10")
		addText(group, "orig", item.Origin)
		addText(group, "CST", "10")
		addText(group, "modBC", "3")
		addText(group, "vBC", money(item.ICMSBasis))
		addText(group, "pICMS", rate(item.ICMSRate))
		addText(group, "vICMS", money(item.ICMSValue))
		addText(group, "modBCST", "4")
		addText(group, "pMVAST", money(item.ICMSSTBasis))
		addText(group, "vBCST", money(item.ICMSSTBasis))
		addText(group, "pICMSST", rate(item.ICMSSTRate))
		addText(group, "vICMSST", money(item.ICMSSTValue))
	case "20":
		group := icms.CreateElement("ICMS20")
		addText(group, "orig", item.Origin)
		addText(group, "CST", "20")
		addText(group, "modBC", "3")
		addText(group, "pRedBC", rate(decimalZero))
		addText(group, "vBC", money(item.ICMSBasis))
		addText(group, "pICMS", rate(item.ICMSRate))
		addText(group, "vICMS", money(item.ICMSValue))
	case "60":
		group := icms.CreateElement("ICMS60")
		addText(group, "orig", item.Origin)
		addText(group, "CST", "60")
		addText(group, "vBCSTRet", money(item.ICMSSTBasis))
		addText(group, "pST", rate(item.ICMSSTRate))
		addText(group, "vICMSSTRet", money(item.ICMSSTValue))
	default:
		if cst != "40" && cst != "41" && cst != "50" {
			cst = "40"
		}
		group := icms.CreateElement("ICMS40")
		addText(group, "orig", item.Origin)
		addText(group, "CST", cst)
	}
}

func buildPIS(imposto *etree.Element, item *invoicedomain.InvoiceItem) {
	pis := imposto.CreateElement("PIS")
	cst := item.PISCST
	if cst == "" {
		cst = "07"
	}
	switch cst {
	case "01", "02":
		group := pis.CreateElement("PISAliq")
		addText(group, "CST", cst)
		addText(group, "vBC", money(item.Total))
		addText(group, "pPIS", rate(item.PISRate))
		addText(group, "vPIS", money(item.PISValue))
	case "49", "50", "99":
		group := pis.CreateElement("PISOutr")
		addText(group, "CST", cst)
		addText(group, "vBC", money(item.Total))
		addText(group, "pPIS", rate(item.PISRate))
		addText(group, "vPIS", money(item.PISValue))
	default:
		group := pis.CreateElement("PISNT")
		addText(group, "CST", cst)
	}
}

func buildCOFINS(imposto *etree.Element, item *invoicedomain.InvoiceItem) {
	cofins := imposto.CreateElement("COFINS")
	cst := item.COFINSCST
	if cst == "" {
		cst = "07"
	}
	switch cst {
	case "01", "02":
		group := cofins.CreateElement("COFINSAliq")
		addText(group, "CST", cst)
		addText(group, "vBC", money(item.Total))
		addText(group, "pCOFINS", rate(item.COFINSRate))
		addText(group, "vCOFINS", money(item.COFINSValue))
	case "49", "50", "99":
		group := cofins.CreateElement("COFINSOutr")
		addText(group, "CST", cst)
		addText(group, "vBC", money(item.Total))
		addText(group, "pCOFINS", rate(item.COFINSRate))
		addText(group, "vCOFINS", money(item.COFINSValue))
	default:
		group := cofins.CreateElement("COFINSNT")
		addText(group, "CST", cst)
	}
}
