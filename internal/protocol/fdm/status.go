package fdm

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StatusTable 状态码（error1+error2）-> 描述
// 仅用于日志，驱动行为不依赖其取值
type StatusTable struct {
	Codes map[string]string `yaml:"codes"`
}

// DefaultStatusTable 返回内置的 FDM 状态码描述
func DefaultStatusTable() *StatusTable {
	return &StatusTable{
		Codes: map[string]string{
			"000": "no error",
			"001": "PIN accepted",
			"101": "FDM data storage 90% full",
			"102": "request already answered",
			"103": "no record",
			"199": "unspecified warning",
			"201": "no VSC or faulty VSC",
			"202": "VSC not initialized with PIN",
			"203": "VSC locked",
			"204": "PIN not valid",
			"205": "FDM data storage full",
			"206": "unknown message identifier",
			"207": "invalid data in message",
			"208": "FDM not operational",
			"209": "FDM realtime clock corrupted",
			"210": "VSC version not supported by FDM",
			"211": "port 4 not ready",
			"299": "unspecified error",
		},
	}
}

// LoadStatusTable 从 YAML 文件加载状态码描述，并覆盖到默认表之上
func LoadStatusTable(path string) (*StatusTable, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read status table: %w", err)
	}
	var t StatusTable
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("unmarshal status table: %w", err)
	}
	out := DefaultStatusTable()
	out.Merge(&t)
	return out, nil
}

// Describe 返回状态码描述；未知状态码按 error1 归类
func (t *StatusTable) Describe(code string) string {
	if t != nil && t.Codes != nil {
		if d, ok := t.Codes[code]; ok {
			return d
		}
	}
	if len(code) > 0 {
		switch code[0] {
		case '0':
			return fmt.Sprintf("unknown info (%s)", code)
		case '1':
			return fmt.Sprintf("unknown warning (%s)", code)
		case '2':
			return fmt.Sprintf("unknown error (%s)", code)
		}
	}
	return fmt.Sprintf("unknown status (%s)", code)
}

// Merge 合并另一个表的描述
func (t *StatusTable) Merge(other *StatusTable) {
	if t == nil || other == nil || other.Codes == nil {
		return
	}
	if t.Codes == nil {
		t.Codes = make(map[string]string, len(other.Codes))
	}
	for k, v := range other.Codes {
		t.Codes[k] = v
	}
}
