package ledger

import (
	"sort"

	"orderbridge/internal/models"
)

// Logical field names shared by the exporter, the reconciler and the preview.
const (
	FieldOrderNumber    = "numeroCommande"
	FieldCustomerCode   = "codeClient"
	FieldOrderDate      = "dateCommande"
	FieldWebReference   = "referenceWeb"
	FieldOrderType      = "typeCommande"
	FieldStatus         = "statut"
	FieldAmountHT       = "montantHT"
	FieldAmountVAT      = "montantTVA"
	FieldAmountTTC      = "montantTTC"
	FieldNotes          = "observations"
	FieldLineCount      = "nombreLignes"
	FieldLineNumber     = "numeroLigne"
	FieldArticleCode    = "codeArticle"
	FieldDesignation    = "designation"
	FieldQuantity       = "quantite"
	FieldUnitPrice      = "prixUnitaire"
	FieldDiscount       = "remise"
	FieldVATRate        = "tauxTva"
	FieldDeliveryNumber = "numeroBL"
	FieldDeliveryDate   = "dateBL"
	FieldInvoiceNumber  = "numeroFacture"
	FieldInvoiceDate    = "dateFacture"
)

// preserveAsText fields are codes or free text; numeric-looking values keep their leading zeros.
var preserveAsText = map[string]bool{
	FieldOrderNumber:    true,
	FieldCustomerCode:   true,
	FieldWebReference:   true,
	FieldOrderType:      true,
	FieldStatus:         true,
	FieldNotes:          true,
	FieldArticleCode:    true,
	FieldDesignation:    true,
	FieldDeliveryNumber: true,
	FieldInvoiceNumber:  true,
	"raisonSociale":     true,
	"adresse":           true,
	"codePostal":        true,
	"ville":             true,
	"telephone":         true,
	"email":             true,
	"famille":           true,
}

// IsPreservedText reports whether a logical field is always bound as text.
func IsPreservedText(logical string) bool {
	return preserveAsText[logical]
}

var defaultMappings = map[string]models.ResolvedMapping{
	models.DatasetClients: {
		TableName: "CLIENTS",
		Columns: map[string]string{
			FieldCustomerCode: "CODE_CLIENT",
			"raisonSociale":   "RAISON_SOCIALE",
			"adresse":         "ADRESSE",
			"codePostal":      "CODE_POSTAL",
			"ville":           "VILLE",
			"telephone":       "TELEPHONE",
			"email":           "EMAIL",
		},
	},
	models.DatasetArticles: {
		TableName: "ARTICLES",
		Columns: map[string]string{
			FieldArticleCode: "CODE_ARTICLE",
			FieldDesignation: "DESIGNATION",
			"famille":        "FAMILLE",
			"prixVente":      "PRIX_VENTE",
			FieldVATRate:     "TAUX_TVA",
			"stock":          "STOCK",
		},
	},
	models.DatasetOrdersHeader: {
		TableName: "CDE_ENTETE",
		Columns: map[string]string{
			FieldOrderNumber:  "NUM_CDE",
			FieldCustomerCode: "CODE_CLIENT",
			FieldOrderDate:    "DATE_CDE",
			FieldWebReference: "REF_WEB",
			FieldOrderType:    "TYPE_CDE",
			FieldStatus:       "STATUT",
			FieldAmountHT:     "MONTANT_HT",
			FieldAmountVAT:    "MONTANT_TVA",
			FieldAmountTTC:    "MONTANT_TTC",
			FieldNotes:        "OBSERVATIONS",
			FieldLineCount:    "NB_LIGNES",
		},
	},
	models.DatasetOrdersDetail: {
		TableName: "CDE_LIGNE",
		Columns: map[string]string{
			FieldOrderNumber: "NUM_CDE",
			FieldLineNumber:  "NUM_LIGNE",
			FieldArticleCode: "CODE_ARTICLE",
			FieldDesignation: "DESIGNATION",
			FieldQuantity:    "QUANTITE",
			FieldUnitPrice:   "PRIX_UNITAIRE",
			FieldDiscount:    "REMISE",
			FieldAmountHT:    "MONTANT_HT",
			FieldVATRate:     "TAUX_TVA",
			FieldAmountTTC:   "MONTANT_TTC",
		},
	},
	models.DatasetDeliveryNotesHeader: {
		TableName: "BL_ENTETE",
		Columns: map[string]string{
			FieldDeliveryNumber: "NUM_BL",
			FieldDeliveryDate:   "DATE_BL",
			FieldCustomerCode:   "CODE_CLIENT",
			FieldAmountHT:       "MONTANT_HT",
			FieldAmountTTC:      "MONTANT_TTC",
		},
	},
	models.DatasetDeliveryNotesDetail: {
		TableName: "BL_LIGNE",
		Columns: map[string]string{
			FieldDeliveryNumber: "NUM_BL",
			FieldOrderNumber:    "NUM_CDE",
			FieldLineNumber:     "NUM_LIGNE",
			FieldArticleCode:    "CODE_ARTICLE",
			FieldDesignation:    "DESIGNATION",
			FieldQuantity:       "QUANTITE",
			FieldUnitPrice:      "PRIX_UNITAIRE",
			FieldDiscount:       "REMISE",
			FieldVATRate:        "TAUX_TVA",
		},
	},
	models.DatasetInvoicesHeader: {
		TableName: "FAC_ENTETE",
		Columns: map[string]string{
			FieldInvoiceNumber: "NUM_FACTURE",
			FieldInvoiceDate:   "DATE_FACTURE",
			FieldCustomerCode:  "CODE_CLIENT",
			FieldAmountHT:      "MONTANT_HT",
			FieldAmountVAT:     "MONTANT_TVA",
			FieldAmountTTC:     "MONTANT_TTC",
		},
	},
	models.DatasetInvoicesDetail: {
		TableName: "FAC_LIGNE",
		Columns: map[string]string{
			FieldInvoiceNumber:  "NUM_FACTURE",
			FieldOrderNumber:    "NUM_CDE",
			FieldDeliveryNumber: "NUM_BL",
			FieldLineNumber:     "NUM_LIGNE",
			FieldArticleCode:    "CODE_ARTICLE",
			FieldDesignation:    "DESIGNATION",
			FieldQuantity:       "QUANTITE",
			FieldUnitPrice:      "PRIX_UNITAIRE",
			FieldDiscount:       "REMISE",
			FieldVATRate:        "TAUX_TVA",
		},
	},
}

// DefaultMapping returns a copy of the compiled-in mapping for a dataset type.
func DefaultMapping(datasetType string) (*models.ResolvedMapping, bool) {
	def, ok := defaultMappings[datasetType]
	if !ok {
		return nil, false
	}
	columns := make(map[string]string, len(def.Columns))
	for k, v := range def.Columns {
		columns[k] = v
	}
	return &models.ResolvedMapping{
		MappingType: datasetType,
		TableName:   def.TableName,
		Columns:     columns,
		IsDefault:   true,
	}, true
}

// DatasetTypes lists every dataset type with a compiled-in default, sorted.
func DatasetTypes() []string {
	types := make([]string, 0, len(defaultMappings))
	for t := range defaultMappings {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// KnownDatasetType reports whether datasetType has a compiled-in default.
func KnownDatasetType(datasetType string) bool {
	_, ok := defaultMappings[datasetType]
	return ok
}
