package query

import (
	"fmt"
	"strings"
)

// textVector must match the expression index created by the products migrations.
const textVector = `to_tsvector('simple', coalesce(name, '') || ' ' || coalesce(description, '') || ' ' || coalesce(brand, ''))`

var sortColumns = map[Field]string{
	FieldPrice:         "price",
	FieldRatingAverage: "rating_average",
	FieldRatingCount:   "rating_count",
	FieldDiscount:      "discount",
	FieldCreatedAt:     "created_at",
	FieldName:          "name",
	FieldID:            "id",
}

type renderer struct {
	args      []any
	searchArg string
}

func (r *renderer) bind(v any) string {
	r.args = append(r.args, v)
	return fmt.Sprintf("$%d", len(r.args))
}

func (r *renderer) where(q Query) string {
	var clauses []string

	if q.ActiveOnly {
		clauses = append(clauses, "is_active = TRUE")
	}
	if q.Category != "" {
		clauses = append(clauses, "category ILIKE "+r.bind(containsPattern(q.Category)))
	}
	if q.CategoryExact != "" {
		clauses = append(clauses, "category = "+r.bind(q.CategoryExact))
	}
	if q.Search != "" {
		if q.TextSearch {
			r.searchArg = r.bind(q.Search)
			clauses = append(clauses, fmt.Sprintf("%s @@ plainto_tsquery('simple', %s)", textVector, r.searchArg))
		} else {
			p := r.bind(containsPattern(q.Search))
			clauses = append(clauses, fmt.Sprintf("(name ILIKE %s OR description ILIKE %s OR brand ILIKE %s)", p, p, p))
		}
	}
	switch len(q.Brands) {
	case 0:
	case 1:
		clauses = append(clauses, "brand = "+r.bind(q.Brands[0]))
	default:
		clauses = append(clauses, "brand = ANY("+r.bind(q.Brands)+")")
	}
	if q.MinPrice != nil {
		clauses = append(clauses, "price >= "+r.bind(*q.MinPrice))
	}
	if q.MaxPrice != nil {
		clauses = append(clauses, "price <= "+r.bind(*q.MaxPrice))
	}
	if q.MinRating != nil {
		clauses = append(clauses, "rating_average >= "+r.bind(*q.MinRating))
	}
	if q.ExcludeID != nil {
		clauses = append(clauses, "id <> "+r.bind(q.ExcludeID.String()))
	}

	if len(clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(clauses, " AND ")
}

func (r *renderer) orderBy(s Sort) string {
	terms := make([]string, 0, len(s)+1)
	hasID := false
	for _, f := range s {
		var expr string
		if f.Field == FieldTextScore {
			if r.searchArg == "" {
				continue
			}
			expr = fmt.Sprintf("ts_rank(%s, plainto_tsquery('simple', %s))", textVector, r.searchArg)
		} else {
			col, ok := sortColumns[f.Field]
			if !ok {
				continue
			}
			expr = col
			hasID = hasID || f.Field == FieldID
		}
		if f.Desc {
			terms = append(terms, expr+" DESC")
		} else {
			terms = append(terms, expr+" ASC")
		}
	}
	// id is unique, so pages never overlap or skip rows with equal sort keys
	if !hasID {
		terms = append(terms, "id ASC")
	}
	return strings.Join(terms, ", ")
}

// Where renders the WHERE clause of q with placeholders starting at $1.
func (q Query) Where() (string, []any) {
	r := &renderer{}
	clause := r.where(q)
	return clause, r.args
}

// SQL renders the WHERE and ORDER BY clauses of the spec; orderBy is never empty.
func (s Spec) SQL() (where string, orderBy string, args []any) {
	r := &renderer{}
	where = r.where(s.Query)
	orderBy = r.orderBy(s.Sort)
	return where, orderBy, r.args
}

func containsPattern(term string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
	return "%" + escaped + "%"
}
