package pipeline

import (
	"strconv"
	"time"

	"github.com/permitlink/internal/model"
	"github.com/permitlink/internal/normalize"
	"github.com/permitlink/internal/quality"
)

// Field name candidates seen across county GIS portals. Schemas vary
// wildly between vendors, so each logical field is resolved against an
// ordered candidate list and the first populated attribute wins.
var (
	addressFields   = []string{"ADDRESS", "SITE_ADDR", "SITUS_ADDR", "FULL_ADDR", "PROP_ADDR", "LOCATION", "SitusAddress"}
	parcelFields    = []string{"PARCEL_ID", "PARCELID", "PIN", "APN", "GIS_LINK", "MAP_PARCEL"}
	ownerFields     = []string{"OWNER_NAME", "OWNER", "OWN_NAME", "OWNER1"}
	ownerAddrFields = []string{"OWNER_ADDR", "MAIL_ADDR", "MAILING_ADDRESS"}
	cityFields      = []string{"CITY", "SITUS_CITY", "PROP_CITY", "MUNICIPALITY"}
	postalFields    = []string{"ZIP", "ZIPCODE", "ZIP_CODE", "POSTAL", "SITUS_ZIP"}
	assessedFields  = []string{"ASSESSED_VALUE", "ASSD_VAL", "TOTAL_ASSD", "ASSESSMENT"}
	marketFields    = []string{"MARKET_VALUE", "TOTAL_VALUE", "APPRAISED", "APPR_VAL"}
	yearFields      = []string{"YEAR_BUILT", "YR_BUILT", "YRBLT", "EFF_YR_BUILT"}
	sqftFields      = []string{"SQFT", "LIVING_AREA", "BLDG_SQFT", "TOTAL_SQFT", "FIN_AREA"}
	bedFields       = []string{"BEDROOMS", "BEDS", "NUM_BEDS"}
	bathFields      = []string{"BATHROOMS", "BATHS", "NUM_BATHS"}
	acresFields     = []string{"ACRES", "LOT_ACRES", "ACREAGE", "CALC_ACRES"}
	lotSqftFields   = []string{"LOT_SQFT", "LAND_SQFT", "LOT_SIZE"}
	transDateFields = []string{"SALE_DATE", "LAST_SALE_DATE", "DEED_DATE", "TRANSFER_DATE"}
	transPrcFields  = []string{"SALE_PRICE", "LAST_SALE_PRICE", "CONSIDERATION"}
	constrFields    = []string{"CONSTRUCTION", "CONSTR_TYPE", "BLDG_TYPE", "STYLE"}
	latFields       = []string{"LAT", "LATITUDE", "Y"}
	lonFields       = []string{"LON", "LONG", "LONGITUDE", "X"}
	permDateFields  = []string{"PERMIT_DATE", "ISSUED_DATE", "DATE_ISSUED", "ISSUE_DATE"}
	applicantFields = []string{"APPLICANT", "APPLICANT_NAME", "OWNER_NAME", "OWNER"}
	objectIDFields  = []string{"OBJECTID", "OBJECTID_1", "FID"}
)

// objectID resolves the stable source row id. Most services type it as
// a number, some as a string.
func objectID(src model.SourceRecord) string {
	for _, k := range objectIDFields {
		if v := src.Str(k); v != "" {
			return v
		}
		if v, ok := src.Num(k); ok {
			return strconv.FormatInt(int64(v), 10)
		}
	}
	return ""
}

func firstStr(src model.SourceRecord, keys []string) string {
	for _, k := range keys {
		if v := src.Str(k); v != "" {
			return v
		}
	}
	return ""
}

func firstNum(src model.SourceRecord, keys []string) *float64 {
	for _, k := range keys {
		if v, ok := src.Num(k); ok {
			return &v
		}
	}
	return nil
}

func firstInt(src model.SourceRecord, keys []string) *int {
	if v := firstNum(src, keys); v != nil {
		n := int(*v)
		return &n
	}
	return nil
}

// firstDate resolves a date attribute. GIS services serve dates as
// epoch milliseconds; string-typed dates fall back to common layouts.
func firstDate(src model.SourceRecord, keys []string) *time.Time {
	for _, k := range keys {
		if ms, ok := src.Num(k); ok && ms > 0 {
			t := time.UnixMilli(int64(ms)).UTC()
			return &t
		}
		if s := src.Str(k); s != "" {
			for _, layout := range []string{time.RFC3339, "2006-01-02", "01/02/2006"} {
				if t, err := time.Parse(layout, s); err == nil {
					return &t
				}
			}
		}
	}
	return nil
}

// PropertyFromSource builds a property record from one raw payload:
// canonicalize, fingerprint, map attributes, score. Unmapped attributes
// ride along in Extra for auditing.
func PropertyFromSource(src model.SourceRecord) model.PropertyRecord {
	canonical := normalize.Canonicalize(src.RawAddress)
	rec := model.PropertyRecord{
		State:             src.State,
		County:            src.County,
		RawAddress:        src.RawAddress,
		CanonicalAddress:  canonical,
		Fingerprint:       normalize.Fingerprint(canonical, src.County, src.State),
		ParcelID:          firstStr(src, parcelFields),
		City:              firstStr(src, cityFields),
		PostalCode:        firstStr(src, postalFields),
		Latitude:          firstNum(src, latFields),
		Longitude:         firstNum(src, lonFields),
		YearBuilt:         firstInt(src, yearFields),
		SquareFootage:     firstInt(src, sqftFields),
		Bedrooms:          firstInt(src, bedFields),
		Bathrooms:         firstNum(src, bathFields),
		ConstructionType:  firstStr(src, constrFields),
		LotAcres:          firstNum(src, acresFields),
		LotSqFt:           firstNum(src, lotSqftFields),
		AssessedValue:     firstNum(src, assessedFields),
		MarketValue:       firstNum(src, marketFields),
		OwnerName:         firstStr(src, ownerFields),
		OwnerAddress:      firstStr(src, ownerAddrFields),
		LastTransferDate:  firstDate(src, transDateFields),
		LastTransferPrice: firstNum(src, transPrcFields),
		SourcePortal:      src.SourcePortal,
		SourceObjectID:    objectID(src),
		ScrapedAt:         src.ScrapedAt,
		Extra:             src.Attrs,
	}
	if rec.SourceObjectID == "" {
		rec.SourceObjectID = src.SourceObjectID
	}
	rec.QualityScore = quality.Score(&rec)
	return rec
}

// PermitFromSource builds a permit record from one raw payload. The
// property reference is left unset; linking is a separate pass.
func PermitFromSource(src model.SourceRecord) model.PermitRecord {
	canonical := normalize.Canonicalize(src.RawAddress)
	rec := model.PermitRecord{
		State:            src.State,
		County:           src.County,
		RawAddress:       src.RawAddress,
		CanonicalAddress: canonical,
		Fingerprint:      normalize.Fingerprint(canonical, src.County, src.State),
		PermitDate:       firstDate(src, permDateFields),
		ApplicantName:    firstStr(src, applicantFields),
		SourcePortal:     src.SourcePortal,
		SourceObjectID:   objectID(src),
		ScrapedAt:        src.ScrapedAt,
		Extra:            src.Attrs,
	}
	if rec.SourceObjectID == "" {
		rec.SourceObjectID = src.SourceObjectID
	}
	return rec
}

// SourceMapper builds the extractor-facing mapper for one portal and
// jurisdiction, resolving the raw address from the usual candidates.
func SourceMapper(j model.Jurisdiction, portal string) func(attrs map[string]any) model.SourceRecord {
	return func(attrs map[string]any) model.SourceRecord {
		src := model.SourceRecord{
			State:        j.State,
			County:       j.County,
			SourcePortal: portal,
			ScrapedAt:    time.Now().UTC(),
			Attrs:        attrs,
		}
		src.RawAddress = firstStr(src, addressFields)
		src.SourceObjectID = objectID(src)
		return src
	}
}
