package parser

import "strconv"

// pncpModalities maps codigoModalidadeContratacao to its label.
var pncpModalities = map[int]string{
	1:  "Leilão - Eletrônico",
	2:  "Diálogo Competitivo",
	3:  "Concurso",
	4:  "Concorrência - Eletrônica",
	5:  "Concorrência - Presencial",
	6:  "Pregão - Presencial",
	7:  "Dispensa de Licitação",
	8:  "Pregão - Eletrônico",
	9:  "Inexigibilidade",
	10: "Manifestação de Interesse",
	11: "Pré-qualificação",
	12: "Credenciamento",
	13: "Leilão - Presencial",
}

// comprasGovModalities differs from PNCP at codes 6-8.
var comprasGovModalities = map[int]string{
	1:  "Leilão - Eletrônico",
	2:  "Diálogo Competitivo",
	3:  "Concurso",
	4:  "Concorrência - Eletrônica",
	5:  "Concorrência - Presencial",
	6:  "Pregão - Eletrônico",
	7:  "Pregão - Presencial",
	8:  "Dispensa de Licitação",
	9:  "Inexigibilidade",
	10: "Manifestação de Interesse",
	11: "Pré-qualificação",
	12: "Credenciamento",
	13: "Leilão - Presencial",
}

var bbmnetModalities = map[int]string{
	1: "Concorrência",
	2: "Concurso",
	3: "Pregão (Setor público)",
	4: "Leilão",
	5: "Diálogo Competitivo",
	6: "Pregão (Setor privado)",
}

// licitarTypes covers both the portal auctionType and the partner processType codes.
var licitarTypes = map[string]string{
	"E": "Pregão Eletrônico",
	"D": "Dispensa Eletrônica",
	"P": "Pregão Presencial",
	"C": "Credenciamento",
	"R": "Concorrência Eletrônica",
	"L": "Leilão Eletrônico",
}

var licitarJudgment = map[string]string{
	"lowestPrice":           "Menor Preço",
	"biggestDiscount":       "Maior Desconto",
	"biggestPrice":          "Maior Preço",
	"bestTechnique":         "Melhor Técnica",
	"techniqueAndPrice":     "Melhor Técnica e Preço",
	"greaterEconomicReturn": "Maior Retorno Econômico",
}

var licitarStages = map[int]string{
	8:  "Publicado",
	9:  "Em andamento",
	10: "Encerrado",
	11: "Homologado",
	12: "Cancelado",
}

func modalityLabel(table map[int]string, code string) string {
	n, err := strconv.Atoi(code)
	if err != nil {
		return ""
	}
	return table[n]
}
