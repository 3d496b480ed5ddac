// Package todo は読み取り専用の Todo 一覧を提供します。
package todo

import (
	"encoding/json"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Date は時刻を持たない日付です。JSON では "YYYY-MM-DD" 形式になります。
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf は t の日付部分を返します。
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// String は "YYYY-MM-DD" 形式の文字列を返します。
func (d Date) String() string {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", s, err)
	}
	*d = DateOf(t)
	return nil
}

// Todo は1件の Todo を表します。
type Todo struct {
	ID         int    `json:"id"`
	Title      string `json:"title"`
	DueBy      *Date  `json:"dueBy"`
	IsComplete bool   `json:"isComplete"`
}

// Seed は起動時に用意するサンプルの Todo を返します。期限は now の日付を基準にします。
func Seed(now time.Time) []Todo {
	due := func(days int) *Date {
		d := DateOf(now.AddDate(0, 0, days))
		return &d
	}
	return []Todo{
		{ID: 1, Title: "Walk the dog"},
		{ID: 2, Title: "Do the dishes", DueBy: due(0)},
		{ID: 3, Title: "Do the laundry", DueBy: due(1)},
		{ID: 4, Title: "Clean the bathroom"},
		{ID: 5, Title: "Clean the car", DueBy: due(2)},
	}
}

// Repository は固定の Todo 一覧を保持します。生成後は変更されないため並行アクセスに安全です。
type Repository struct {
	todos []Todo
}

// NewRepository は todos から Repository を作成します。ID が重複している場合はエラーです。
func NewRepository(todos []Todo) (*Repository, error) {
	seen := make(map[int]struct{}, len(todos))
	for _, t := range todos {
		if _, ok := seen[t.ID]; ok {
			return nil, fmt.Errorf("duplicate todo id: %d", t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	copied := make([]Todo, len(todos))
	copy(copied, todos)
	return &Repository{todos: copied}, nil
}

// List は全件を登録順に返します。
func (r *Repository) List() []Todo {
	out := make([]Todo, len(r.todos))
	copy(out, r.todos)
	return out
}

// Get は id に一致する Todo を返します。見つからない場合は false です。
func (r *Repository) Get(id int) (Todo, bool) {
	for _, t := range r.todos {
		if t.ID == id {
			return t, true
		}
	}
	return Todo{}, false
}
