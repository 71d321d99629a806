// Copyright 2025 Parcelmail
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"parcelmail/internal/config"
	"parcelmail/internal/mapping"
)

var statusPlain bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Browse the stored user mappings",
	Long: `Shows every user known to the mapping store with their order and
package number counts and the newest email timestamp seen. Interactive
by default; --plain prints a static listing.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusPlain, "plain", false, "print a static listing instead of the interactive table")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	store, err := mapping.Open(cfg.Processing.StateDBPath)
	if err != nil {
		return fmt.Errorf("failed to open state database: %w", err)
	}
	defer store.Close()

	mappings, err := store.All()
	if err != nil {
		return err
	}

	if statusPlain {
		printMappings(mappings)
		return nil
	}

	model := newStatusModel(store, mappings)
	_, err = tea.NewProgram(model).Run()
	return err
}

func printMappings(mappings []mapping.UserMapping) {
	if len(mappings) == 0 {
		fmt.Println("no mappings stored")
		return
	}
	for _, m := range mappings {
		last := "-"
		if m.LastEmailDate != nil {
			last = m.LastEmailDate.Format("02.01.2006 15:04")
		}
		fmt.Printf("%-24s orders=%d packages=%d last_email=%s\n",
			m.UserKey, len(m.OrderNumbers), len(m.PackageNumbers), last)
	}
}

type statusKeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Refresh key.Binding
	Delete  key.Binding
	Quit    key.Binding
}

func defaultStatusKeys() statusKeyMap {
	return statusKeyMap{
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Delete:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete mapping")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

var (
	statusHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	statusHelpStyle   = lipgloss.NewStyle().Faint(true)
)

type statusModel struct {
	table    table.Model
	store    *mapping.Store
	mappings []mapping.UserMapping
	keys     statusKeyMap
	message  string
}

func newStatusModel(store *mapping.Store, mappings []mapping.UserMapping) statusModel {
	columns := []table.Column{
		{Title: "User", Width: 24},
		{Title: "Orders", Width: 8},
		{Title: "Packages", Width: 10},
		{Title: "Last email", Width: 18},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(mappingRows(mappings)),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).BorderBottom(true)
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	t.SetStyles(styles)

	return statusModel{table: t, store: store, mappings: mappings, keys: defaultStatusKeys()}
}

func mappingRows(mappings []mapping.UserMapping) []table.Row {
	rows := make([]table.Row, len(mappings))
	for i, m := range mappings {
		last := "-"
		if m.LastEmailDate != nil {
			last = m.LastEmailDate.Format("02.01.2006 15:04")
		}
		rows[i] = table.Row{
			m.UserKey,
			strconv.Itoa(len(m.OrderNumbers)),
			strconv.Itoa(len(m.PackageNumbers)),
			last,
		}
	}
	return rows
}

func (m statusModel) Init() tea.Cmd { return nil }

func (m statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Refresh):
			m.reload()
		case key.Matches(msg, m.keys.Delete):
			m.deleteSelected()
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *statusModel) reload() {
	mappings, err := m.store.All()
	if err != nil {
		m.message = "refresh failed: " + err.Error()
		return
	}
	m.mappings = mappings
	m.table.SetRows(mappingRows(mappings))
	m.message = fmt.Sprintf("%d mappings", len(mappings))
}

func (m *statusModel) deleteSelected() {
	cursor := m.table.Cursor()
	if cursor < 0 || cursor >= len(m.mappings) {
		return
	}
	user := m.mappings[cursor].UserKey
	if err := m.store.RemoveMapping(user); err != nil {
		m.message = "delete failed: " + err.Error()
		return
	}
	m.message = "removed " + user
	m.reload()
}

func (m statusModel) View() string {
	help := statusHelpStyle.Render("↑/↓ move · r refresh · d delete · q quit")
	out := statusHeaderStyle.Render("Parcelmail mappings") + "\n" + m.table.View() + "\n" + help
	if m.message != "" {
		out += "\n" + m.message
	}
	return out + "\n"
}
