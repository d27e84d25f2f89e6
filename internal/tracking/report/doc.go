// Package report renders cycle results for humans: PNG track plots through
// gonum/plot and an HTML statistics page through go-echarts.
package report
