package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PulseLoom/PulseLoom/internal/store"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	employeeCmd = &cobra.Command{
		Use:   "employee",
		Short: "Manage the tracked employee roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	employeeAddCmd = &cobra.Command{
		Use:   "add",
		Short: "Add or update an employee",
		RunE:  runEmployeeAdd,
	}

	employeeListCmd = &cobra.Command{
		Use:   "list",
		Short: "List tracked employees",
		RunE:  runEmployeeList,
	}

	employeeContextCmd = &cobra.Command{
		Use:   "context",
		Short: "Set the analysis context (reporting line, reward eligibility)",
		RunE:  runEmployeeContext,
	}
)

func init() {
	employeeAddCmd.Flags().String("email", "", "Employee email")
	employeeAddCmd.Flags().String("name", "", "Display name")
	employeeAddCmd.Flags().String("role", "", "Role title")
	employeeAddCmd.Flags().String("manager", "", "Manager email")
	employeeAddCmd.Flags().Bool("inactive", false, "Mark the employee inactive")
	employeeListCmd.Flags().Bool("all", false, "Include inactive employees")
	employeeListCmd.Flags().Bool("json", false, "Output machine-readable JSON")
	employeeContextCmd.Flags().String("email", "", "Employee email")
	employeeContextCmd.Flags().String("manager", "", "Manager email")
	employeeContextCmd.Flags().String("role", "", "Role title")
	employeeContextCmd.Flags().Bool("bonus-eligible", false, "Employee is bonus eligible this cycle")
	employeeContextCmd.Flags().Bool("promotion-eligible", false, "Employee is promotion eligible this cycle")
	employeeContextCmd.Flags().String("notes", "", "Free-form context notes")
	employeeCmd.AddCommand(employeeAddCmd)
	employeeCmd.AddCommand(employeeListCmd)
	employeeCmd.AddCommand(employeeContextCmd)
	rootCmd.AddCommand(employeeCmd)
}

func runEmployeeAdd(cmd *cobra.Command, args []string) error {
	email, _ := cmd.Flags().GetString("email")
	name, _ := cmd.Flags().GetString("name")
	role, _ := cmd.Flags().GetString("role")
	manager, _ := cmd.Flags().GetString("manager")
	inactive, _ := cmd.Flags().GetBool("inactive")
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("--email is required")
	}

	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.UpsertEmployee(cmd.Context(), &store.Employee{
		Email:        email,
		Name:         strings.TrimSpace(name),
		Role:         strings.TrimSpace(role),
		ManagerEmail: strings.TrimSpace(manager),
		Active:       !inactive,
	}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Saved %s\n", color.GreenString("✓"), email)
	return nil
}

func runEmployeeList(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	asJSON, _ := cmd.Flags().GetBool("json")

	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	employees, err := st.ListEmployees(cmd.Context(), !all)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		if employees == nil {
			employees = []store.Employee{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(employees)
	}
	if len(employees) == 0 {
		fmt.Fprintln(out, "No employees tracked.")
		return nil
	}
	for _, e := range employees {
		marker := "✓"
		if !e.Active {
			marker = "✗"
		}
		fmt.Fprintf(out, "%s %s", marker, e.Email)
		if e.Name != "" {
			fmt.Fprintf(out, "  (%s)", e.Name)
		}
		if e.Role != "" {
			fmt.Fprintf(out, "  %s", e.Role)
		}
		if e.ManagerEmail != "" {
			fmt.Fprintf(out, "  reports to %s", e.ManagerEmail)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func runEmployeeContext(cmd *cobra.Command, args []string) error {
	email, _ := cmd.Flags().GetString("email")
	manager, _ := cmd.Flags().GetString("manager")
	role, _ := cmd.Flags().GetString("role")
	bonus, _ := cmd.Flags().GetBool("bonus-eligible")
	promotion, _ := cmd.Flags().GetBool("promotion-eligible")
	notes, _ := cmd.Flags().GetString("notes")
	email = strings.TrimSpace(email)
	manager = strings.TrimSpace(manager)
	if email == "" {
		return fmt.Errorf("--email is required")
	}
	if manager == "" {
		return fmt.Errorf("--manager is required")
	}

	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.UpsertAnalysisContext(cmd.Context(), &store.AnalysisContext{
		EmployeeEmail:     email,
		ManagerEmail:      manager,
		Role:              strings.TrimSpace(role),
		BonusEligible:     bonus,
		PromotionEligible: promotion,
		Notes:             strings.TrimSpace(notes),
	}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Analysis context saved for %s\n", color.GreenString("✓"), email)
	return nil
}
