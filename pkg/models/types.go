package models

import "time"

// RawTable is a row-oriented table as read from a CSV or XLSX source.
// Cells are kept as raw text; typing happens in the cleaner.
type RawTable struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// ColumnMap names the source column for each SalesRow field.
type ColumnMap struct {
	EntityName   string `json:"entity_name"`   // 顧客・店舗名
	ItemCategory string `json:"item_category"` // 商品カテゴリ
	ItemName     string `json:"item_name"`     // 商品名
	Quantity     string `json:"quantity"`      // 数量
	UnitPrice    string `json:"unit_price"`    // 単価
	Amount       string `json:"amount"`        // 金額
	Date         string `json:"date"`          // 日付
}

// DefaultColumnMap returns the column names of the sales sheet export.
func DefaultColumnMap() ColumnMap {
	return ColumnMap{
		EntityName:   "Name",
		ItemCategory: "Type",
		ItemName:     "Item",
		Quantity:     "Qty",
		UnitPrice:    "Sales Price",
		Amount:       "Amount",
		Date:         "Date",
	}
}

// SalesRow represents a single cleaned sales record.
// Fields that were not required by the cleaning step may hold zero values.
type SalesRow struct {
	EntityName   string    `json:"entity_name"`
	ItemCategory string    `json:"item_category"`
	ItemName     string    `json:"item_name"`
	Quantity     float64   `json:"quantity"`
	UnitPrice    float64   `json:"unit_price"`
	Amount       float64   `json:"amount"`
	Date         time.Time `json:"date"`
}

// MonthlyAggregate is the summed Amount of one entity within one calendar month.
type MonthlyAggregate struct {
	EntityName string    `json:"entity_name"`
	Month      time.Time `json:"month"` // 月初 (UTC)
	Amount     float64   `json:"amount"`
}

// TimeSeriesPoint is one month of an entity's sales history.
type TimeSeriesPoint struct {
	Date        time.Time `json:"date"`
	ActualValue *float64  `json:"actual_value"`
}

// EntitySeries is the chronological monthly series of one entity.
type EntitySeries struct {
	Entity string            `json:"entity"` // リクエストされた名前
	Points []TimeSeriesPoint `json:"points"`
}

// ActualsByDate returns the join map used to merge forecast output back to actuals.
func (s *EntitySeries) ActualsByDate() map[time.Time]float64 {
	out := make(map[time.Time]float64, len(s.Points))
	for _, p := range s.Points {
		if p.ActualValue != nil {
			out[p.Date] = *p.ActualValue
		}
	}
	return out
}

// ForecastPoint is a single predicted month. JSON names follow the chart component.
type ForecastPoint struct {
	Date           time.Time `json:"-"`
	DateLabel      string    `json:"ds"`
	PredictedValue float64   `json:"yhat"`
	LowerBound     float64   `json:"yhat_lower"`
	UpperBound     float64   `json:"yhat_upper"`
	ActualValue    *float64  `json:"y_actual"`
}

// ForecastRequest is the body of the forecast endpoint.
type ForecastRequest struct {
	StoreName string `json:"store_name" binding:"required"`
	Periods   int    `json:"periods"`
}

// ForecastResult is the merged forecast of one store.
type ForecastResult struct {
	Store    string          `json:"store"`
	Forecast []ForecastPoint `json:"forecast"`
}

// TreeNode is a renderable decision tree node.
// Internal nodes carry exactly two children (left, right); leaves carry none.
type TreeNode struct {
	Name     string      `json:"name"`
	Children []*TreeNode `json:"children,omitempty"`
}

// IsLeaf reports whether the node has no children.
func (n *TreeNode) IsLeaf() bool {
	return len(n.Children) == 0
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (n *TreeNode) Depth() int {
	if n == nil || n.IsLeaf() {
		return 0
	}
	deepest := 0
	for _, c := range n.Children {
		if d := c.Depth(); d > deepest {
			deepest = d
		}
	}
	return deepest + 1
}

// LeafCount returns the number of leaves under n.
func (n *TreeNode) LeafCount() int {
	if n == nil {
		return 0
	}
	if n.IsLeaf() {
		return 1
	}
	total := 0
	for _, c := range n.Children {
		total += c.LeafCount()
	}
	return total
}

// CustomerAggregate holds the per-customer features used by clustering.
type CustomerAggregate struct {
	Name         string  `json:"Name"`
	Amount       float64 `json:"Amount"`        // 合計金額
	Qty          float64 `json:"Qty"`           // 合計数量
	SalesPrice   float64 `json:"Sales Price"`   // 平均単価
	ScaledAmount float64 `json:"Scaled Amount"` // 標準化済み金額
	Cluster      int     `json:"Cluster_Sales"`
}

// ClusterSummary is the mean of each numeric aggregate within one cluster.
type ClusterSummary struct {
	Cluster    int     `json:"cluster"`
	Members    int     `json:"members"`
	Amount     float64 `json:"Amount"`
	Qty        float64 `json:"Qty"`
	SalesPrice float64 `json:"Sales Price"`
}

// ClusterResult is the outcome of customer clustering.
type ClusterResult struct {
	K           int                 `json:"k"`
	Customers   []CustomerAggregate `json:"clusters"`
	Summary     []ClusterSummary    `json:"summary"`
	Membership  map[int][]string    `json:"customers_per_cluster"`
	Inertia     float64             `json:"inertia"`
	DroppedRows int                 `json:"dropped_rows"`
}

// Assignments returns the entity -> cluster id mapping.
func (r *ClusterResult) Assignments() map[string]int {
	out := make(map[string]int, len(r.Customers))
	for _, c := range r.Customers {
		out[c.Name] = c.Cluster
	}
	return out
}

// TreeDescription is the result of serializing the prediction model.
type TreeDescription struct {
	Root          *TreeNode `json:"root"`
	RowsValidated int       `json:"rows_validated"`
	Depth         int       `json:"depth"`
	Leaves        int       `json:"leaves"`
}
