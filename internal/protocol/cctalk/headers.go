package cctalk

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// 常用 header
const (
	HeaderReply               = 0
	HeaderResetDevice         = 1
	HeaderReadBillEvents      = 159
	HeaderModifyMasterInhibit = 228
	HeaderReadCoinEvents      = 229
	HeaderModifyInhibit       = 231
	HeaderManufacturerID      = 246
	HeaderSimplePoll          = 254
)

// HeaderTable header -> 功能名称，仅用于展示
type HeaderTable struct {
	Names map[int]string `yaml:"headers"`
}

// HeaderInfo 排序后的条目
type HeaderInfo struct {
	Code int    `json:"code"`
	Name string `json:"name"`
}

// DefaultHeaderTable 默认表（BillyOne 文档所列）
func DefaultHeaderTable() *HeaderTable {
	return &HeaderTable{
		Names: map[int]string{
			1:   "Reset Device",
			4:   "Request comms revision",
			152: "Request inhibit status",
			154: "Route bill",
			156: "Request country scaling factor",
			159: "Read buffered bill events",
			192: "Request build code",
			194: "Request database version",
			197: "Calculate ROM checksum",
			213: "Request option flags",
			225: "Request accept counter",
			226: "Request insertion counter",
			227: "Request master inhibit status",
			228: "Modify master inhibit status",
			229: "Read buffered credit or error codes",
			230: "Request inhibit status",
			231: "Modify inhibit status",
			232: "Perform self-check",
			241: "Request software revision",
			242: "Request serial number",
			244: "Request product code",
			245: "Request equipment category id",
			246: "Request manufacturer id",
			249: "Request polling priority",
			254: "Simple poll",
		},
	}
}

// LoadHeaderTable 从 YAML 读取覆盖表
//
//	headers:
//	  160: "Request bill id"
func LoadHeaderTable(path string) (*HeaderTable, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read header table: %w", err)
	}
	var t HeaderTable
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("unmarshal header table: %w", err)
	}
	if t.Names == nil {
		t.Names = make(map[int]string)
	}
	for code := range t.Names {
		if code < 0 || code > 255 {
			return nil, fmt.Errorf("header table: code %d out of range", code)
		}
	}
	return &t, nil
}

// Merge 合并另一张表，后者覆盖
func (t *HeaderTable) Merge(other *HeaderTable) {
	if t == nil || other == nil || other.Names == nil {
		return
	}
	if t.Names == nil {
		t.Names = make(map[int]string)
	}
	for k, v := range other.Names {
		t.Names[k] = v
	}
}

// Name 返回 header 名称，未知返回空串
func (t *HeaderTable) Name(header byte) string {
	if t == nil || t.Names == nil {
		return ""
	}
	return t.Names[int(header)]
}

// List 按 code 升序
func (t *HeaderTable) List() []HeaderInfo {
	if t == nil {
		return nil
	}
	out := make([]HeaderInfo, 0, len(t.Names))
	for code, name := range t.Names {
		out = append(out, HeaderInfo{Code: code, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
